package hw

import "io"

// Video models the text-mode video: characters go to a writer, the color
// attribute is remembered so the console primitives can set it.
type Video struct {
	w    io.Writer
	attr uint8
}

// NewVideo returns a video writing to w; nil discards everything.
func NewVideo(w io.Writer) *Video {
	return &Video{w: w}
}

// CharWrite puts one character on the screen.
func (v *Video) CharWrite(c byte) {
	if v.w != nil {
		v.w.Write([]byte{c})
	}
}

// StrWrite puts a string on the screen.
func (v *Video) StrWrite(s string) {
	if v.w != nil {
		io.WriteString(v.w, s)
	}
}

// Clear clears the screen and sets the color attribute.
func (v *Video) Clear(attr uint8) {
	v.attr = attr
}

// Attr returns the current color attribute.
func (v *Video) Attr() uint8 { return v.attr }
