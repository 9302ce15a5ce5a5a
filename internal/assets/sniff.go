package assets

import (
	"bytes"
	"fmt"

	"github.com/dl-alexandre/bimview/internal/model"
	"github.com/dl-alexandre/bimview/internal/utils"
	"github.com/h2non/filetype"
)

// sniffLen is how much of a file's head content detection looks at
const sniffLen = 512

var (
	TypeIFC  = filetype.NewType("ifc", "application/x-step")
	TypeGLB  = filetype.NewType("glb", "model/gltf-binary")
	TypeGLTF = filetype.NewType("gltf", "model/gltf+json")
)

func init() {
	filetype.AddMatcher(TypeIFC, matchIFC)
	filetype.AddMatcher(TypeGLB, matchGLB)
	filetype.AddMatcher(TypeGLTF, matchGLTF)
}

func trimHead(buf []byte) []byte {
	buf = bytes.TrimPrefix(buf, []byte("\xef\xbb\xbf"))
	return bytes.TrimLeft(buf, " \t\r\n")
}

func matchIFC(buf []byte) bool {
	return bytes.HasPrefix(trimHead(buf), []byte("ISO-10303-21;"))
}

func matchGLB(buf []byte) bool {
	return len(buf) >= 12 && bytes.Equal(buf[:4], []byte("glTF"))
}

func matchGLTF(buf []byte) bool {
	head := trimHead(buf)
	return len(head) > 0 && head[0] == '{'
}

// Sniff identifies a model format from the first bytes of its content
func Sniff(data []byte) (model.Format, bool) {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "", false
	}
	switch kind {
	case TypeIFC:
		return model.FormatIFC, true
	case TypeGLB:
		return model.FormatGLB, true
	case TypeGLTF:
		return model.FormatGLTF, true
	}
	return "", false
}

// Verify checks that content agrees with the format its name claims. A
// .gltf name may carry binary content; the glTF parser handles both.
func Verify(name string, format model.Format, data []byte) error {
	got, ok := Sniff(data)
	if ok && (got == format || (format == model.FormatGLTF && got == model.FormatGLB)) {
		return nil
	}
	detected := "unrecognized content"
	if ok {
		detected = fmt.Sprintf("%s content", got)
	}
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeUnsupportedFormat,
		fmt.Sprintf("%s: expected %s, found %s", name, format, detected)).
		WithContext("file", name).
		WithContext("format", string(format)).
		Build())
}
