// Package proposal downloads proposal archives from the SALT API.
package proposal

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
)

// APISession is the part of the API session this package uses. *salt.Session
// implements it.
type APISession interface {
	Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error)
}

// DownloadZip downloads the zip file of the proposal with the given code and
// writes it to w.
//
// The archive is rewritten on the way: the code attribute on the root
// element of Proposal.xml is set to the proposal code, as the stored file
// may still carry a placeholder code of the form "Unsubmitted-...". All
// other archive members are copied unchanged.
func DownloadZip(ctx context.Context, session APISession, proposalCode string, w io.Writer) error {
	resp, err := session.Get(ctx, "/proposals/"+url.PathEscape(proposalCode)+".zip", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to download proposal: %w", err)
	}

	in, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("the downloaded proposal is not a zip file: %w", err)
	}

	out := zip.NewWriter(w)
	for _, f := range in.File {
		content, err := readMember(f)
		if err != nil {
			return fmt.Errorf("failed to read %s from the downloaded proposal: %w", f.Name, err)
		}
		if f.Name == "Proposal.xml" {
			content, err = updateProposalCode(content, proposalCode)
			if err != nil {
				return fmt.Errorf("failed to update the proposal code in %s: %w", f.Name, err)
			}
		}
		member, err := out.Create(f.Name)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
		if _, err := member.Write(content); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	return out.Close()
}

// DownloadZipFile is DownloadZip with a file path destination. An existing
// file is overwritten.
func DownloadZipFile(ctx context.Context, session APISession, proposalCode, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := DownloadZip(ctx, session, proposalCode, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readMember(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var codeAttrPattern = regexp.MustCompile(`(\s)code\s*=\s*("[^"]*"|'[^']*')`)

// updateProposalCode sets the code attribute on the root element of the
// given XML document, adding it if absent. Only the root start tag is
// touched; the rest of the document is preserved byte for byte, which a
// full decode/encode round trip through encoding/xml would not be.
func updateProposalCode(doc []byte, code string) ([]byte, error) {
	start, end, err := rootStartTag(doc)
	if err != nil {
		return nil, err
	}

	tag := doc[start:end]
	var updated []byte
	if codeAttrPattern.Match(tag) {
		updated = codeAttrPattern.ReplaceAll(tag, []byte(`${1}code="`+code+`"`))
	} else {
		insert := end - 1
		if doc[insert-1] == '/' {
			insert--
		}
		updated = append(updated, doc[start:insert]...)
		updated = append(updated, []byte(` code="`+code+`"`)...)
		updated = append(updated, doc[insert:end]...)
	}

	result := make([]byte, 0, len(doc)+len(updated)-len(tag))
	result = append(result, doc[:start]...)
	result = append(result, updated...)
	result = append(result, doc[end:]...)
	return result, nil
}

// rootStartTag locates the start tag of the root element, skipping the XML
// declaration, comments, processing instructions and a doctype. It returns
// the byte offsets of '<' and one past '>'.
func rootStartTag(doc []byte) (int, int, error) {
	i := 0
	for {
		open := bytes.IndexByte(doc[i:], '<')
		if open < 0 {
			return 0, 0, fmt.Errorf("no root element found")
		}
		i += open

		switch {
		case bytes.HasPrefix(doc[i:], []byte("<?")):
			close := bytes.Index(doc[i:], []byte("?>"))
			if close < 0 {
				return 0, 0, fmt.Errorf("unterminated processing instruction")
			}
			i += close + 2
		case bytes.HasPrefix(doc[i:], []byte("<!--")):
			close := bytes.Index(doc[i:], []byte("-->"))
			if close < 0 {
				return 0, 0, fmt.Errorf("unterminated comment")
			}
			i += close + 3
		case bytes.HasPrefix(doc[i:], []byte("<!")):
			close := bytes.IndexByte(doc[i:], '>')
			if close < 0 {
				return 0, 0, fmt.Errorf("unterminated doctype")
			}
			i += close + 1
		default:
			end, err := endOfTag(doc, i)
			if err != nil {
				return 0, 0, err
			}
			return i, end, nil
		}
	}
}

// endOfTag returns the offset one past the '>' ending the tag that starts at
// start, ignoring '>' inside quoted attribute values.
func endOfTag(doc []byte, start int) (int, error) {
	var quote byte
	for i := start; i < len(doc); i++ {
		c := doc[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated root element tag")
}
