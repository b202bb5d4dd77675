package registry

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// toUTF8 returns data unchanged when it is already UTF-8. Otherwise the
// charset is detected and the document transcoded, so seed files exported
// by legacy tools in Latin-1 or Windows code pages still load.
func toUTF8(data []byte) ([]byte, string, error) {
	if utf8.Valid(data) {
		return data, "UTF-8", nil
	}

	detected, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil {
		return nil, "", fmt.Errorf("detecting charset: %w", err)
	}

	r, err := charset.NewReaderLabel(detected.Charset, bytes.NewReader(data))
	if err != nil {
		return nil, detected.Charset, fmt.Errorf("unsupported charset %s: %w", detected.Charset, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, detected.Charset, fmt.Errorf("transcoding from %s: %w", detected.Charset, err)
	}
	return out, detected.Charset, nil
}
