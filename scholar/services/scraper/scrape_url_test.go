package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const landingPage = `<html><head>
<title>Fallback title</title>
<meta name="citation_title" content="Deep Residual Learning for Image Recognition">
<meta name="citation_author" content="He, Kaiming">
<meta name="citation_author" content="Zhang, Xiangyu">
<meta name="citation_publication_date" content="2015/12/10">
<meta name="citation_pdf_url" content="/pdf/1512.03385">
<meta name="citation_arxiv_id" content="1512.03385">
<meta name="description" content="Deeper neural networks are more difficult to train.">
<script>var tracking = 1;</script>
</head><body><nav>Home</nav><p>Deeper neural   networks</p><p>are hard.</p></body></html>`

func TestParseMeta(t *testing.T) {
	base, _ := url.Parse("https://arxiv.org/abs/1512.03385")
	meta, err := ParseMeta(base, []byte(landingPage))
	require.NoError(t, err)

	assert.Equal(t, "Deep Residual Learning for Image Recognition", meta.Title)
	assert.Equal(t, []string{"He, Kaiming", "Zhang, Xiangyu"}, meta.Authors)
	assert.Equal(t, "https://arxiv.org/pdf/1512.03385", meta.PDFURL)
	assert.Equal(t, "1512.03385", meta.ArxivID)
	require.NotNil(t, meta.Published)
	assert.Equal(t, 2015, meta.Published.Year())
	assert.Equal(t, "Deeper neural networks are more difficult to train.", meta.Abstract)
	assert.Equal(t, "Deeper neural networks are hard.", meta.Text)
}

func TestImportPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(landingPage))
	}))
	defer srv.Close()

	meta, err := NewScraper(srv.Client()).ImportPage(context.Background(), srv.URL+"/abs/1")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/pdf/1512.03385", meta.PDFURL)
}

func TestImportPageRejectsBadURL(t *testing.T) {
	_, err := NewScraper(nil).ImportPage(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}
