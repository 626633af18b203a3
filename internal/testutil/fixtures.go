// Package testutil provides shared test fixtures for the goastrosalt
// packages: zip archive builders and progress payload builders matching the
// server's wire format.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

// ZipArchive builds an in-memory zip archive from file names to contents.
func ZipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s to zip fixture: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s in zip fixture: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip fixture: %v", err)
	}
	return buf.Bytes()
}

// ProposalXML returns a minimal Proposal.xml document. With a non-empty code
// the root element carries a code attribute.
func ProposalXML(code string) string {
	attr := ""
	if code != "" {
		attr = fmt.Sprintf(" code=%q", code)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" ?>

<Proposal xmlns="http://www.salt.ac.za/PIPT/Proposal/Phase2"%s/>
`, attr)
}

// EntryTime returns the deterministic timestamp used for the log entry with
// the given entry number in progress fixtures.
func EntryTime(entryNumber int) time.Time {
	return time.Date(2024, 10, 25, 10, 0, 0, 0, time.UTC).Add(time.Duration(entryNumber) * time.Second)
}

// ProgressJSON builds a progress batch payload. One log entry is generated
// per message type, numbered consecutively from firstEntry, with message
// "Message <n>" and the EntryTime timestamp. proposalCode is serialized as
// null when empty.
func ProgressJSON(status string, firstEntry int, messageTypes []string, proposalCode string) string {
	entries := make([]string, 0, len(messageTypes))
	for i, mt := range messageTypes {
		n := firstEntry + i
		entries = append(entries, fmt.Sprintf(
			`{"entry_number": %d, "logged_at": %q, "message_type": %q, "message": "Message %d"}`,
			n, EntryTime(n).Format(time.RFC3339), mt, n,
		))
	}

	code := "null"
	if proposalCode != "" {
		code = fmt.Sprintf("%q", proposalCode)
	}

	return fmt.Sprintf(`{"status": %q, "log_entries": [%s], "proposal_code": %s}`,
		status, strings.Join(entries, ", "), code)
}
