package trap

import "encoding/binary"

// Frame image sizes in bytes. A ring-0 frame stops after EFLAGS; a
// ring-3 frame carries the two extra user-stack words the CPU pushes
// on a privilege transition.
const (
	FrameBytesKernel = 17 * 4
	FrameBytesUser   = 19 * 4
)

// ImageBytes returns the size of the frame's stack image.
func (f *Frame) ImageBytes() int {
	if f.FromUser() {
		return FrameBytesUser
	}
	return FrameBytesKernel
}

// EncodeAt writes the frame's stack image into stack so that the image
// ends at the top of the slice, the way the entry stub leaves it, and
// returns the offset of the image's lowest byte (the saved frame
// address within the stack).
func (f *Frame) EncodeAt(stack []byte) int {
	size := f.ImageBytes()
	off := len(stack) - size
	b := stack[off:]
	le := binary.LittleEndian

	le.PutUint32(b[0:], f.EDI)
	le.PutUint32(b[4:], f.ESI)
	le.PutUint32(b[8:], f.EBP)
	le.PutUint32(b[12:], f.OrigESP)
	le.PutUint32(b[16:], f.EBX)
	le.PutUint32(b[20:], f.EDX)
	le.PutUint32(b[24:], f.ECX)
	le.PutUint32(b[28:], f.EAX)
	le.PutUint32(b[32:], f.GS)
	le.PutUint32(b[36:], f.FS)
	le.PutUint32(b[40:], f.ES)
	le.PutUint32(b[44:], f.DS)
	le.PutUint32(b[48:], f.Vector)
	le.PutUint32(b[52:], f.ErrCode)
	le.PutUint32(b[56:], f.EIP)
	le.PutUint32(b[60:], f.CS)
	le.PutUint32(b[64:], f.EFLAGS)
	if f.FromUser() {
		le.PutUint32(b[68:], f.UserESP)
		le.PutUint32(b[72:], f.UserSS)
	}
	return off
}

// DecodeFrame reads a frame image starting at b[0]. The caller must
// pass at least FrameBytesKernel bytes; the user-stack words are read
// only when the encoded CS selects ring 3.
func DecodeFrame(b []byte) (*Frame, error) {
	if len(b) < FrameBytesKernel {
		return nil, ErrShortImage
	}
	le := binary.LittleEndian
	f := &Frame{
		EDI:     le.Uint32(b[0:]),
		ESI:     le.Uint32(b[4:]),
		EBP:     le.Uint32(b[8:]),
		OrigESP: le.Uint32(b[12:]),
		EBX:     le.Uint32(b[16:]),
		EDX:     le.Uint32(b[20:]),
		ECX:     le.Uint32(b[24:]),
		EAX:     le.Uint32(b[28:]),
		GS:      le.Uint32(b[32:]),
		FS:      le.Uint32(b[36:]),
		ES:      le.Uint32(b[40:]),
		DS:      le.Uint32(b[44:]),
		Vector:  le.Uint32(b[48:]),
		ErrCode: le.Uint32(b[52:]),
		EIP:     le.Uint32(b[56:]),
		CS:      le.Uint32(b[60:]),
		EFLAGS:  le.Uint32(b[64:]),
	}
	if f.FromUser() {
		if len(b) < FrameBytesUser {
			return nil, ErrShortImage
		}
		f.UserESP = le.Uint32(b[68:])
		f.UserSS = le.Uint32(b[72:])
	}
	return f, nil
}

// ImageError reports a malformed frame image.
type ImageError string

func (e ImageError) Error() string { return string(e) }

const ErrShortImage ImageError = "frame image truncated"
