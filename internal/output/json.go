package output

import (
	"io"

	"github.com/bytedance/sonic"
)

// JSONFormatter formats data as indented JSON.
type JSONFormatter struct{}

// Format formats data as indented JSON.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	body, err := sonic.ConfigStd.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	body = append(body, '\n')
	_, err = w.Write(body)
	return err
}
