package kipris

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"PatentReporter/internal/config"
	"PatentReporter/internal/domain"
)

const pageTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<response>
  <header><resultCode>00</resultCode></header>
  <body>
    <items>
      <PatentUtilityInfo>
        <ApplicationNumber>10-2024-%[1]d000001</ApplicationNumber>
        <RegistrationNumber>10-%[1]d000001</RegistrationNumber>
        <InventionName>Page %[1]d first</InventionName>
        <Abstract>An apparatus for training a neural network on page %[1]d.</Abstract>
      </PatentUtilityInfo>
      <PatentUtilityInfo>
        <ApplicationNumber>10-2024-%[1]d000002</ApplicationNumber>
        <InventionName>Page %[1]d second</InventionName>
        <Abstract><p>A method   for <b>image</b> segmentation.</p></Abstract>
      </PatentUtilityInfo>
    </items>
  </body>
</response>`

func testConfig(endpoint string, pages int) config.KiprisConfig {
	return config.KiprisConfig{
		Endpoint:    endpoint,
		APIKey:      "secret",
		CPCNumber:   "G06N",
		TotalPages:  pages,
		RowsPerPage: 30,
	}
}

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	u, err := buildPageURL(testConfig("http://plus.kipris.or.kr/openapi/rest/search", 1), 3)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	q := parsed.Query()
	if q.Get("cpcNumber") != "G06N" || q.Get("accessKey") != "secret" || q.Get("pageNo") != "3" || q.Get("numOfRows") != "30" {
		t.Fatalf("unexpected query: %s", parsed.RawQuery)
	}
}

func TestDecodePatents(t *testing.T) {
	t.Parallel()

	patents, err := decodePatents(strings.NewReader(fmt.Sprintf(pageTemplate, 1)))
	if err != nil {
		t.Fatalf("decodePatents: %v", err)
	}
	if len(patents) != 2 {
		t.Fatalf("expected 2 patents, got %d", len(patents))
	}

	first := patents[0]
	if first.ApplicationNumber != "10-2024-1000001" || first.RegistrationNumber != "10-1000001" || first.InventionName != "Page 1 first" {
		t.Fatalf("unexpected first patent %+v", first)
	}

	second := patents[1]
	if second.RegistrationNumber != domain.NotAvailable {
		t.Fatalf("missing element must become N/A, got %q", second.RegistrationNumber)
	}
	if second.Abstract != "A method for image segmentation." {
		t.Fatalf("markup must be stripped, got %q", second.Abstract)
	}
}

func TestDecodePatentsKeepsEscapedText(t *testing.T) {
	t.Parallel()

	doc := `<r><PatentUtilityInfo>
  <ApplicationNumber>10-2024-0000001</ApplicationNumber>
  <RegistrationNumber/>
  <InventionName>   </InventionName>
  <Abstract>A circuit outputs high when V1&lt;V2 and low when V1&gt;V2, with a margin of 5 mV.</Abstract>
</PatentUtilityInfo></r>`
	patents, err := decodePatents(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decodePatents: %v", err)
	}
	if len(patents) != 1 {
		t.Fatalf("expected 1 patent, got %d", len(patents))
	}

	p := patents[0]
	if p.Abstract != "A circuit outputs high when V1<V2 and low when V1>V2, with a margin of 5 mV." {
		t.Fatalf("escaped comparison must survive, got %q", p.Abstract)
	}
	if p.RegistrationNumber != domain.NotAvailable || p.InventionName != domain.NotAvailable {
		t.Fatalf("empty elements must become N/A, got %q and %q", p.RegistrationNumber, p.InventionName)
	}
}

func TestDecodePatentsCDATA(t *testing.T) {
	t.Parallel()

	doc := `<r><PatentUtilityInfo><Abstract><![CDATA[Gain is 3 when x<y & y>0.]]></Abstract></PatentUtilityInfo></r>`
	patents, err := decodePatents(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decodePatents: %v", err)
	}
	if len(patents) != 1 || patents[0].Abstract != "Gain is 3 when x<y & y>0." {
		t.Fatalf("unexpected decode %+v", patents)
	}
}

func TestDecodePatentsHonoursDeclaredCharset(t *testing.T) {
	t.Parallel()

	// "é" in ISO-8859-1
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><r><PatentUtilityInfo><InventionName>Caf\xe9</InventionName></PatentUtilityInfo></r>"
	patents, err := decodePatents(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decodePatents: %v", err)
	}
	if len(patents) != 1 || patents[0].InventionName != "Café" {
		t.Fatalf("unexpected decode %+v", patents)
	}
	if patents[0].Abstract != domain.NotAvailable {
		t.Fatalf("expected N/A abstract")
	}
}

func TestFetchRawRecordsCollectsAllPages(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var page int
		fmt.Sscanf(r.URL.Query().Get("pageNo"), "%d", &page)
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, pageTemplate, page)
	}))
	t.Cleanup(server.Close)

	client := NewClient(testConfig(server.URL, 3), server.Client(), 2, nil)
	patents, err := client.FetchRawRecords(context.Background())
	if err != nil {
		t.Fatalf("FetchRawRecords: %v", err)
	}
	if hits.Load() != 3 || len(patents) != 6 {
		t.Fatalf("expected 3 requests and 6 patents, got %d and %d", hits.Load(), len(patents))
	}
	if patents[0].InventionName != "Page 1 first" || patents[5].InventionName != "Page 3 second" {
		t.Fatalf("pages must be concatenated in page order")
	}
}

func TestFetchRawRecordsSkipsFailedPages(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageNo") == "2" {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, pageTemplate, 1)
	}))
	t.Cleanup(server.Close)

	client := NewClient(testConfig(server.URL, 3), server.Client(), 10, nil)
	patents, err := client.FetchRawRecords(context.Background())
	if err == nil || !strings.Contains(err.Error(), "page 2") {
		t.Fatalf("expected page 2 failure, got %v", err)
	}
	if len(patents) != 4 {
		t.Fatalf("expected records from the healthy pages, got %d", len(patents))
	}
}

func TestFetchRawRecordsRequiresKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1", 1)
	cfg.APIKey = ""
	patents, err := NewClient(cfg, nil, 1, nil).FetchRawRecords(context.Background())
	if !errors.Is(err, ErrMissingAPIKey) || patents != nil {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
