package ocr

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	run func(name string, args ...string) ([]byte, []byte, error)
}

func (f fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	return f.run(name, args...)
}

func TestPDFTextSource(t *testing.T) {
	src := NewPDFTextSource(Config{}, nil)
	src.runner = fakeRunner{run: func(name string, args ...string) ([]byte, []byte, error) {
		assert.Equal(t, "pdftotext", name)
		assert.Contains(t, args, "-layout")
		return []byte("Factura No.: FV-1\r\n\r\n\r\n\r\nTotal: 100  "), nil, nil
	}}

	text, err := src.Text(context.Background(), "/inbox/fv-1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Factura No.: FV-1\n\nTotal: 100", text)
	assert.Equal(t, "pdf_direct", src.Name())
}

func TestPDFTextSourceFailure(t *testing.T) {
	src := NewPDFTextSource(Config{}, nil)
	src.runner = fakeRunner{run: func(string, ...string) ([]byte, []byte, error) {
		return nil, []byte("broken pdf"), errors.New("exit status 1")
	}}

	_, err := src.Text(context.Background(), "/inbox/bad.pdf")
	assert.Error(t, err)
}

func TestTesseractSource(t *testing.T) {
	src := NewTesseractSource(Config{Language: "spa"}, nil)
	src.runner = fakeRunner{run: func(name string, args ...string) ([]byte, []byte, error) {
		switch name {
		case "pdftoppm":
			prefix := args[len(args)-1]
			require.NoError(t, os.WriteFile(prefix+"-1.png", []byte("png"), 0o644))
			require.NoError(t, os.WriteFile(prefix+"-2.png", []byte("png"), 0o644))
			return nil, nil, nil
		case "tesseract":
			if strings.HasSuffix(args[0], "-1.png") {
				return []byte("page one"), nil, nil
			}
			return []byte("page two"), nil, nil
		}
		return nil, nil, errors.New("unexpected command " + name)
	}}

	text, err := src.Text(context.Background(), "/inbox/scan.pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "page one")
	assert.Contains(t, text, "page two")
	assert.Equal(t, "ocr", src.Name())
}

func TestTesseractSourcePageFailureIsIsolated(t *testing.T) {
	src := NewTesseractSource(Config{}, nil)
	src.runner = fakeRunner{run: func(name string, args ...string) ([]byte, []byte, error) {
		switch name {
		case "pdftoppm":
			prefix := args[len(args)-1]
			require.NoError(t, os.WriteFile(prefix+"-1.png", []byte("png"), 0o644))
			require.NoError(t, os.WriteFile(prefix+"-2.png", []byte("png"), 0o644))
			return nil, nil, nil
		case "tesseract":
			if strings.HasSuffix(args[0], "-1.png") {
				return nil, []byte("noise"), errors.New("exit status 1")
			}
			return []byte("page two"), nil, nil
		}
		return nil, nil, errors.New("unexpected command " + name)
	}}

	text, err := src.Text(context.Background(), "/inbox/scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "page two", text)
}

func TestNormalize(t *testing.T) {
	in := "a\tline\r\n----------\r\nnext   line  \n\n\n\n\nlast"
	got := Normalize(in)
	assert.Equal(t, "a line\n\nnext   line\n\nlast", got)
}
