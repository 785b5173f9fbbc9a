package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	linesPerTextPage = 60
	maxKeywords      = 5
)

var pdfPageMarker = regexp.MustCompile(`/Type\s*/Page[^s]`)

type ExtractedData struct {
	Entities   []string `json:"entities"`
	KeyPhrases []string `json:"keyPhrases"`
}

type Report struct {
	JobID         string        `json:"jobId"`
	JobName       string        `json:"jobName,omitempty"`
	DocumentKey   string        `json:"documentKey"`
	ContentType   string        `json:"contentType"`
	SizeBytes     int           `json:"sizeBytes"`
	SHA256        string        `json:"sha256"`
	PageCount     int           `json:"pageCount"`
	AnalyzedAt    time.Time     `json:"analyzedAt"`
	Summary       string        `json:"summary"`
	ExtractedData ExtractedData `json:"extractedData"`
}

// DocumentAnalyzer derives size, digest, page estimate and frequent terms
// from the raw document bytes.
type DocumentAnalyzer struct {
	now func() time.Time
}

func NewDocumentAnalyzer(now func() time.Time) DocumentAnalyzer {
	if now == nil {
		now = nowUTC
	}
	return DocumentAnalyzer{now: now}
}

func (a DocumentAnalyzer) Analyze(ctx context.Context, req Request, doc Document) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if len(doc.Data) == 0 {
		return Report{}, fmt.Errorf("document %s is empty", doc.Key)
	}

	now := a.now
	if now == nil {
		now = nowUTC
	}

	contentType := doc.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(doc.Data)
	}
	sum := sha256.Sum256(doc.Data)

	report := Report{
		JobID:       req.JobID,
		JobName:     req.JobName,
		DocumentKey: doc.Key,
		ContentType: contentType,
		SizeBytes:   len(doc.Data),
		SHA256:      hex.EncodeToString(sum[:]),
		PageCount:   pageCount(contentType, doc.Data),
		AnalyzedAt:  now(),
		ExtractedData: ExtractedData{
			Entities:   []string{},
			KeyPhrases: []string{},
		},
	}

	if isText(contentType, doc.Data) {
		report.ExtractedData = extractTerms(string(doc.Data))
	}

	noun := "pages"
	if report.PageCount == 1 {
		noun = "page"
	}
	report.Summary = fmt.Sprintf("%s document, %d %s, %d bytes", contentType, report.PageCount, noun, report.SizeBytes)
	return report, nil
}

func pageCount(contentType string, data []byte) int {
	if strings.HasPrefix(contentType, "application/pdf") || bytes.HasPrefix(data, []byte("%PDF")) {
		if n := len(pdfPageMarker.FindAllIndex(data, -1)); n > 0 {
			return n
		}
		return 1
	}
	if isText(contentType, data) {
		lines := bytes.Count(data, []byte("\n")) + 1
		return max(1, (lines+linesPerTextPage-1)/linesPerTextPage)
	}
	return 1
}

func isText(contentType string, data []byte) bool {
	return strings.HasPrefix(contentType, "text/") && utf8.Valid(data)
}

var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "their": {}, "there": {}, "these": {}, "those": {},
	"which": {}, "would": {}, "shall": {}, "where": {}, "while": {}, "other": {},
}

// extractTerms picks the most frequent long words as key phrases and the most
// frequent capitalized words that do not start a sentence as entities.
func extractTerms(text string) ExtractedData {
	keywords := map[string]int{}
	entities := map[string]int{}

	sentenceStart := true
	for _, raw := range strings.Fields(text) {
		word := strings.TrimFunc(raw, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if word != "" {
			lower := strings.ToLower(word)
			if _, stop := stopWords[lower]; !stop && utf8.RuneCountInString(word) >= 5 {
				keywords[lower]++
			}
			first, _ := utf8.DecodeRuneInString(word)
			if !sentenceStart && unicode.IsUpper(first) {
				entities[word]++
			}
		}
		sentenceStart = strings.HasSuffix(raw, ".") || strings.HasSuffix(raw, "!") || strings.HasSuffix(raw, "?")
	}

	return ExtractedData{
		Entities:   topTerms(entities, maxKeywords),
		KeyPhrases: topTerms(keywords, maxKeywords),
	}
}

func topTerms(counts map[string]int, limit int) []string {
	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}
