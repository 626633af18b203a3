package proposal

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	salt "github.com/saltastro/goastrosalt"
	"github.com/saltastro/goastrosalt/internal/testutil"
)

func newDownloadServer(t *testing.T, archive []byte) (*httptest.Server, *string) {
	t.Helper()

	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	}))
	t.Cleanup(server.Close)
	return server, &requestedPath
}

func archiveMembers(t *testing.T, data []byte) map[string][]byte {
	t.Helper()

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	members := make(map[string][]byte, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		members[f.Name] = content
	}
	return members
}

func TestDownloadZip(t *testing.T) {
	t.Parallel()

	archive := testutil.ZipArchive(t, map[string]string{
		"Proposal.xml": testutil.ProposalXML("Unsubmitted-005"),
		"Block.xml":    "<Block name=\"NGC 6302\"/>",
		"finder.fits":  "image data",
	})
	server, requestedPath := newDownloadServer(t, archive)

	session, err := salt.NewSession(server.URL)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, DownloadZip(context.Background(), session, "2024-2-SCI-055", &buf))

	assert.Equal(t, "/proposals/2024-2-SCI-055.zip", *requestedPath)

	members := archiveMembers(t, buf.Bytes())
	require.Len(t, members, 3)

	// The placeholder code is replaced; everything else is untouched.
	assert.Equal(t, testutil.ProposalXML("2024-2-SCI-055"), string(members["Proposal.xml"]))
	assert.Equal(t, "<Block name=\"NGC 6302\"/>", string(members["Block.xml"]))
	assert.Equal(t, "image data", string(members["finder.fits"]))
}

func TestDownloadZipFile(t *testing.T) {
	t.Parallel()

	archive := testutil.ZipArchive(t, map[string]string{
		"Proposal.xml": testutil.ProposalXML(""),
	})
	server, _ := newDownloadServer(t, archive)

	session, err := salt.NewSession(server.URL)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "proposal.zip")
	require.NoError(t, DownloadZipFile(context.Background(), session, "2024-2-SCI-055", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	members := archiveMembers(t, data)
	assert.Equal(t, testutil.ProposalXML("2024-2-SCI-055"), string(members["Proposal.xml"]))
}

func TestDownloadZipErrors(t *testing.T) {
	t.Parallel()

	t.Run("API error is passed through", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		session, err := salt.NewSession(server.URL)
		require.NoError(t, err)

		var buf bytes.Buffer
		err = DownloadZip(context.Background(), session, "2024-2-SCI-055", &buf)
		var apiErr *salt.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	})

	t.Run("non-zip response", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not a zip file"))
		}))
		defer server.Close()

		session, err := salt.NewSession(server.URL)
		require.NoError(t, err)

		var buf bytes.Buffer
		err = DownloadZip(context.Background(), session, "2024-2-SCI-055", &buf)
		require.ErrorContains(t, err, "not a zip file")
	})
}

func TestUpdateProposalCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "replaces a double-quoted code",
			doc:  `<Proposal code="Unsubmitted-005"><Title/></Proposal>`,
			want: `<Proposal code="2024-2-SCI-055"><Title/></Proposal>`,
		},
		{
			name: "replaces a single-quoted code",
			doc:  `<Proposal code='Unsubmitted-005'/>`,
			want: `<Proposal code="2024-2-SCI-055"/>`,
		},
		{
			name: "adds a missing code",
			doc:  `<Proposal xmlns="http://www.salt.ac.za/PIPT/Proposal/Phase2"><Title/></Proposal>`,
			want: `<Proposal xmlns="http://www.salt.ac.za/PIPT/Proposal/Phase2" code="2024-2-SCI-055"><Title/></Proposal>`,
		},
		{
			name: "adds a missing code to a self-closing root",
			doc:  `<Proposal xmlns="http://www.salt.ac.za/PIPT/Proposal/Phase2"/>`,
			want: `<Proposal xmlns="http://www.salt.ac.za/PIPT/Proposal/Phase2" code="2024-2-SCI-055"/>`,
		},
		{
			name: "skips the XML declaration and comments",
			doc: `<?xml version="1.0" encoding="UTF-8" ?>
<!-- submitted with PIPT -->
<Proposal code="Unsubmitted-005"/>`,
			want: `<?xml version="1.0" encoding="UTF-8" ?>
<!-- submitted with PIPT -->
<Proposal code="2024-2-SCI-055"/>`,
		},
		{
			name: "leaves code attributes on child elements alone",
			doc:  `<Proposal code="Unsubmitted-005"><Block code="B-1"/></Proposal>`,
			want: `<Proposal code="2024-2-SCI-055"><Block code="B-1"/></Proposal>`,
		},
		{
			name: "ignores a closing bracket inside an attribute value",
			doc:  `<Proposal note="a > b" code="Unsubmitted-005"><Title/></Proposal>`,
			want: `<Proposal note="a > b" code="2024-2-SCI-055"><Title/></Proposal>`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := updateProposalCode([]byte(tc.doc), "2024-2-SCI-055")
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}

	t.Run("fails without a root element", func(t *testing.T) {
		t.Parallel()

		_, err := updateProposalCode([]byte("   "), "2024-2-SCI-055")
		require.Error(t, err)
	})
}
