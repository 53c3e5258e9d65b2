package capture

import "fmt"

// ============================================================
// STAGING DEVICE
// ============================================================

// Texture is a copy target owned by a Device.
type Texture interface {
	Size() Size
	Format() PixelFormat
}

// Device performs the copy into staging targets and the readback into
// CPU memory. CopyAsync may return before the copy has completed.
type Device interface {
	CreateTexture(size Size, format PixelFormat) (Texture, error)
	CopyAsync(dst Texture, src RawFrame) error
	Readback(src Texture, dst []byte) error
	ReleaseTexture(Texture)
}

// memoryDevice keeps textures in host memory. The copy is synchronous, so
// the one-frame delay of the staging ring costs latency but is safe.
type memoryDevice struct{}

func NewMemoryDevice() Device {
	return memoryDevice{}
}

type memoryTexture struct {
	size   Size
	format PixelFormat
	pix    []byte
}

func (t *memoryTexture) Size() Size          { return t.size }
func (t *memoryTexture) Format() PixelFormat { return t.format }

func (memoryDevice) CreateTexture(size Size, format PixelFormat) (Texture, error) {
	if size.Empty() {
		return nil, fmt.Errorf("create texture: empty size %s", size)
	}
	return &memoryTexture{size: size, format: format, pix: make([]byte, size.Bytes(format))}, nil
}

func (memoryDevice) CopyAsync(dst Texture, src RawFrame) error {
	tex, ok := dst.(*memoryTexture)
	if !ok {
		return fmt.Errorf("copy: foreign texture %T", dst)
	}
	if src.Size != tex.size {
		return fmt.Errorf("copy: size mismatch %s != %s", src.Size, tex.size)
	}

	rowBytes := tex.size.Width * tex.format.BytesPerPixel()
	stride := src.Stride
	if stride == 0 {
		stride = tex.size.Width * src.Format.BytesPerPixel()
	}
	if stride < rowBytes || len(src.Pix) < stride*(tex.size.Height-1)+rowBytes {
		return fmt.Errorf("copy: short source buffer (%d bytes, stride %d)", len(src.Pix), stride)
	}

	swap, err := needsSwizzle(src.Format, tex.format)
	if err != nil {
		return err
	}

	for y := 0; y < tex.size.Height; y++ {
		row := tex.pix[y*rowBytes : (y+1)*rowBytes]
		copy(row, src.Pix[y*stride:y*stride+rowBytes])
		if swap {
			swapRedBlue(row)
		}
	}
	return nil
}

func (memoryDevice) Readback(src Texture, dst []byte) error {
	tex, ok := src.(*memoryTexture)
	if !ok {
		return fmt.Errorf("readback: foreign texture %T", src)
	}
	if len(dst) < len(tex.pix) {
		return fmt.Errorf("readback: destination too small (%d < %d)", len(dst), len(tex.pix))
	}
	copy(dst, tex.pix)
	return nil
}

func (memoryDevice) ReleaseTexture(t Texture) {
	if tex, ok := t.(*memoryTexture); ok {
		tex.pix = nil
	}
}

func needsSwizzle(from, to PixelFormat) (bool, error) {
	switch {
	case from == to:
		return false, nil
	case (from == RGBA8 && to == BGRA8) || (from == BGRA8 && to == RGBA8):
		return true, nil
	}
	return false, fmt.Errorf("%w: %s to %s", ErrUnsupported, from, to)
}

func swapRedBlue(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
