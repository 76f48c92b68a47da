package constants

// Source identifies the extraction strategy a field candidate came from.
type Source string

const (
	SourceRegex     Source = "regex"
	SourceNLP       Source = "nlp"
	SourceOCR       Source = "ocr"
	SourcePDFDirect Source = "pdf_direct"
)

// SourcePriority ranks sources highest-first. Priority order is the confidence
// model: structured pattern matches beat generic entity recognition, which beats
// noisy OCR text, which beats direct text extraction on scanned PDFs.
var SourcePriority = []Source{SourceRegex, SourceNLP, SourceOCR, SourcePDFDirect}
