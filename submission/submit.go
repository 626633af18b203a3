package submission

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"os"
)

// manifestNames are the files of which a submitted archive must contain
// exactly one.
var manifestNames = []string{"Proposal.xml", "Blocks.xml", "Block.xml"}

// Submit submits the proposal or block zip file at the given path.
//
// The archive must contain exactly one of Proposal.xml, Blocks.xml or
// Block.xml together with the required attachments. For a new proposal the
// proposal code must be empty; for a resubmission or a block submission it
// must be the code of the existing proposal. If Proposal.xml carries a code
// of its own, it must match the argument.
//
// Validation problems are reported as *ValidationError before anything is
// sent to the server. On success the returned Submission tracks the
// server-side processing; receiving it does not mean the submission has
// succeeded, only that the archive has been accepted for processing.
func Submit(ctx context.Context, session APISession, path, proposalCode string) (*Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read submission file: %w", err)
	}
	return SubmitData(ctx, session, data, proposalCode)
}

// SubmitData is Submit for an in-memory zip archive.
func SubmitData(ctx context.Context, session APISession, data []byte, proposalCode string) (*Submission, error) {
	if err := validateArchive(data, proposalCode); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if proposalCode != "" {
		if err := form.WriteField("proposal_code", proposalCode); err != nil {
			return nil, fmt.Errorf("failed to build upload request: %w", err)
		}
	}
	file, err := form.CreateFormFile("proposal.zip", "proposal.zip")
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}

	resp, err := session.Post(ctx, "/submissions/", form.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Identifier string `json:"identifier"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.Identifier == "" {
		return nil, &ParseError{Err: fmt.Errorf("submission response carries no identifier")}
	}

	return NewSubmission(session, result.Identifier), nil
}

// validateArchive performs the upfront checks on a submitted archive. Any
// deeper validation is the server's job.
func validateArchive(data []byte, proposalCode string) error {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &ValidationError{Message: "the submitted file must be a zip file"}
	}

	var manifests []string
	for _, f := range archive.File {
		for _, name := range manifestNames {
			if f.Name == name {
				manifests = append(manifests, name)
			}
		}
	}
	if len(manifests) == 0 {
		return &ValidationError{
			Message: "the submitted zip file must contain a file Proposal.xml, Blocks.xml or Block.xml",
		}
	}
	if len(manifests) > 1 {
		return &ValidationError{
			Message: "the submitted zip file must contain exactly one of Proposal.xml, Blocks.xml or Block.xml",
		}
	}

	manifest := manifests[0]
	if manifest != "Proposal.xml" && proposalCode == "" {
		return &ValidationError{Message: "a proposal code is required for a block submission"}
	}

	if manifest == "Proposal.xml" {
		embedded, err := embeddedProposalCode(archive, manifest)
		if err != nil {
			return err
		}
		if embedded != "" && embedded != proposalCode {
			return &ValidationError{
				Message: fmt.Sprintf(
					"the proposal code argument (%s) does not match the proposal code in the submitted Proposal.xml file (%s)",
					proposalCode, embedded,
				),
			}
		}
	}

	return nil
}

// embeddedProposalCode returns the code attribute of the root element of the
// named archive member, or an empty string if there is none.
func embeddedProposalCode(archive *zip.Reader, name string) (string, error) {
	f, err := archive.Open(name)
	if err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("the submitted zip file cannot be read: %v", err)}
	}
	defer f.Close()

	decoder := xml.NewDecoder(f)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", &ValidationError{Message: fmt.Sprintf("the submitted %s cannot be parsed: %v", name, err)}
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "code" {
				return attr.Value, nil
			}
		}
		return "", nil
	}
}
