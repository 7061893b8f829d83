package usecase

import (
	"fmt"
	"path"
	"strings"
)

func submissionLockKey(submissionID int64) string {
	return fmt.Sprintf("submission:%d", submissionID)
}

func conversionLockKey(submissionID int64) string {
	return fmt.Sprintf("conversion:%d", submissionID)
}

func proceedingsLockKey(conferenceID int64) string {
	return fmt.Sprintf("proceedings:%d", conferenceID)
}

// SourceKey is the storage key of a version's source file.
func SourceKey(submissionID int64, number int, ext string) string {
	return fmt.Sprintf("submissions/%d/%d.%s", submissionID, number, ext)
}

// FinalKey derives the converted PDF key from the source key, in the same namespace.
func FinalKey(sourceKey string) string {
	dir, file := path.Split(sourceKey)
	stem := strings.TrimSuffix(file, path.Ext(file))
	if stem == "" {
		stem = "final"
	}
	return dir + stem + ".pdf"
}

// ProceedingsKey is the storage key of a conference's compiled archive.
func ProceedingsKey(slug string, conferenceID int64) string {
	return fmt.Sprintf("proceedings/%s_%d.pdf", sanitizeSlug(slug), conferenceID)
}

func sanitizeSlug(slug string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(slug))
	if out == "" {
		return "conference"
	}
	return out
}
