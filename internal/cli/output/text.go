package output

import (
	"fmt"
	"io"
)

// TextFormatter prints what a person at a terminal wants to see: the value
// for a successful GET, otherwise the status and any message.
type TextFormatter struct{}

// Format writes data as plain text.
func (f *TextFormatter) Format(w io.Writer, data any) error {
	switch r := data.(type) {
	case *Result:
		return f.Format(w, *r)
	case Result:
		switch {
		case r.Value != "" || (r.Op == "GET" && r.Status == "OK"):
			_, err := fmt.Fprintln(w, r.Value)
			return err
		case r.Message != "":
			_, err := fmt.Fprintf(w, "%s: %s\n", r.Status, r.Message)
			return err
		default:
			_, err := fmt.Fprintln(w, r.Status)
			return err
		}
	default:
		_, err := fmt.Fprintln(w, data)
		return err
	}
}
