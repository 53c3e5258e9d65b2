package capture

import (
	"fmt"
	"sync"

	"fjarsyn/internal/buffer"
)

// ============================================================
// STAGING PIPELINE
// ============================================================

// StagingPipeline copies each raw frame into a ring of staging textures
// and reads back the texture written one step earlier, so the reader never
// touches the target the device is still writing.
//
// There is no fence: the readback trusts that one frame interval is long
// enough for the previous copy to land.
type StagingPipeline struct {
	device Device
	format PixelFormat
	depth  int

	mu         sync.RWMutex
	textures   []Texture
	frameCount uint64
	size       Size
}

func NewStagingPipeline(device Device, format PixelFormat, depth int) *StagingPipeline {
	if depth < 2 {
		depth = 2
	}
	return &StagingPipeline{device: device, format: format, depth: depth}
}

// Process runs one pipeline step. It returns a nil lease during warm-up
// (the first frame after creation or a reset).
func (p *StagingPipeline) Process(raw RawFrame, alloc func(n int) buffer.Leased) (buffer.Leased, Size, error) {
	write, read, size, warm, err := p.advance(raw.Size)
	if err != nil {
		return nil, Size{}, err
	}

	if err := p.device.CopyAsync(write, raw); err != nil {
		// The slot now holds stale data; start over rather than read it later.
		p.Reset()
		return nil, Size{}, fmt.Errorf("staging copy: %w", err)
	}

	if !warm {
		return nil, size, nil
	}

	lease := alloc(size.Bytes(p.format))
	if err := p.device.Readback(read, lease.Bytes()); err != nil {
		lease.Release()
		return nil, Size{}, fmt.Errorf("staging readback: %w", err)
	}
	return lease, size, nil
}

// advance picks the write and read slots for this frame and bumps the
// counter. It reallocates the ring when the source size changes.
func (p *StagingPipeline) advance(size Size) (write, read Texture, cur Size, warm bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.textures == nil || size != p.size {
		if err := p.reallocLocked(size); err != nil {
			return nil, nil, Size{}, false, err
		}
	}

	n := uint64(p.depth)
	write = p.textures[p.frameCount%n]
	if p.frameCount >= 1 {
		read = p.textures[(p.frameCount-1)%n]
		warm = true
	}
	p.frameCount++
	return write, read, p.size, warm, nil
}

func (p *StagingPipeline) reallocLocked(size Size) error {
	p.releaseLocked()

	textures := make([]Texture, 0, p.depth)
	for i := 0; i < p.depth; i++ {
		tex, err := p.device.CreateTexture(size, p.format)
		if err != nil {
			for _, t := range textures {
				p.device.ReleaseTexture(t)
			}
			return fmt.Errorf("create staging texture %d: %w", i, err)
		}
		textures = append(textures, tex)
	}

	if !p.size.Empty() && size != p.size {
		log.Infof("📐 Source resized %s -> %s, staging ring reset", p.size, size)
	}
	p.textures = textures
	p.size = size
	p.frameCount = 0
	return nil
}

func (p *StagingPipeline) releaseLocked() {
	for _, t := range p.textures {
		p.device.ReleaseTexture(t)
	}
	p.textures = nil
	p.frameCount = 0
}

// Reset drops every staging texture. The next Process warms up again.
func (p *StagingPipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

func (p *StagingPipeline) FrameCount() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frameCount
}

func (p *StagingPipeline) Size() Size {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.size
}
