package export

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kotoba/internal/ingest"
)

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"txt": ModeText, ".TXT": ModeText, "docx": ModeDocx, " .docx ": ModeDocx, "": ModeText} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseMode("pdf")
	require.Error(t, err)
}

func TestFileName(t *testing.T) {
	require.Equal(t, "newspaper.txt", FileName("newspaper", "", ModeText))
	require.Equal(t, "draft.docx", FileName("draft.txt", "", ModeDocx))
	require.Equal(t, "newspaper.docx", FileName(" ", "", ModeDocx))
	require.Equal(t, "ad.docx", FileName(".docx", "ad", ModeDocx))
	require.Equal(t, "ad.txt", FileName(" .txt ", "ad.txt", ModeText))
	require.Equal(t, "newspaper.docx", FileName(".docx", ".docx", ModeDocx))
}

func TestRenderText(t *testing.T) {
	out, err := Render("広告文です。", ModeText)
	require.NoError(t, err)
	require.Equal(t, []byte("広告文です。"), out)
}

func TestRenderDocxReadsBack(t *testing.T) {
	text := "A&B <特価> の案内です。"
	out, err := Render(text, ModeDocx)
	require.NoError(t, err)

	doc, err := ingest.FromBytes(FileName("copy", "", ModeDocx), out)
	require.NoError(t, err)
	require.Equal(t, text, doc.Text)
}

func TestRenderUnknownMode(t *testing.T) {
	_, err := Render("x", Mode(".pdf"))
	require.Error(t, err)
}
