package kipris

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"PatentReporter/internal/batch"
	"PatentReporter/internal/config"
	"PatentReporter/internal/domain"
	"PatentReporter/internal/logging"
	"PatentReporter/internal/ports"
)

const itemElement = "PatentUtilityInfo"

// ErrMissingAPIKey is returned before any request when no access key is configured.
var ErrMissingAPIKey = errors.New("kipris: access key is not configured")

// Client pages through the KIPRIS CPC search endpoint.
type Client struct {
	cfg       config.KiprisConfig
	http      *http.Client
	batchSize int
	logger    *slog.Logger
}

var _ ports.PatentSource = (*Client)(nil)

// NewClient wires an HTTP client; pages are requested at most batchSize at a time.
func NewClient(cfg config.KiprisConfig, httpClient *http.Client, batchSize int, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{cfg: cfg, http: httpClient, batchSize: batchSize, logger: logger}
}

// FetchRawRecords requests pages 1..TotalPages. Failed pages are skipped and reported in the
// returned error alongside whatever the other pages produced.
func (c *Client) FetchRawRecords(ctx context.Context) ([]domain.Patent, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	pages := make([]int, max(c.cfg.TotalPages, 1))
	for i := range pages {
		pages[i] = i + 1
	}

	var pageErrs []error
	results := batch.Run(ctx, batch.Config{Size: c.batchSize, Logger: c.logger}, pages, c.fetchPage,
		func(f batch.Failure[int]) ([]domain.Patent, bool) {
			c.logger.Warn("page failed", "page", f.Item, "error", f.Err)
			pageErrs = append(pageErrs, fmt.Errorf("page %d: %w", f.Item, f.Err))
			return nil, false
		})

	var patents []domain.Patent
	for _, page := range results {
		patents = append(patents, page...)
	}
	c.logger.Info("kipris fetch finished", "pages", len(pages), "failed", len(pageErrs), "patents", len(patents))
	return patents, errors.Join(pageErrs...)
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]domain.Patent, error) {
	pageURL, err := buildPageURL(c.cfg, page)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "PatentReporter/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kipris returned %s", resp.Status)
	}

	patents, err := decodePatents(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	c.logger.Debug("page fetched", "page", page, "patents", len(patents))
	return patents, nil
}

type patentItem struct {
	ApplicationNumber  *itemText `xml:"ApplicationNumber"`
	RegistrationNumber *itemText `xml:"RegistrationNumber"`
	InventionName      *itemText `xml:"InventionName"`
	Abstract           *itemText `xml:"Abstract"`
}

// itemText keeps both the decoded character data and the raw content of an element.
// Children is non-empty only when the element carries real child markup.
type itemText struct {
	Text     string `xml:",chardata"`
	Inner    string `xml:",innerxml"`
	Children []struct {
		XMLName xml.Name
	} `xml:",any"`
}

// decodePatents streams the document and extracts every PatentUtilityInfo element at any depth.
func decodePatents(r io.Reader) ([]domain.Patent, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var patents []domain.Patent
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return patents, nil
		}
		if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != itemElement {
			continue
		}

		var item patentItem
		if err := dec.DecodeElement(&item, &start); err != nil {
			return nil, err
		}
		patents = append(patents, domain.Patent{
			ApplicationNumber:  field(item.ApplicationNumber),
			RegistrationNumber: field(item.RegistrationNumber),
			InventionName:      field(item.InventionName),
			Abstract:           field(item.Abstract),
		})
	}
}

// field maps a missing or blank element to N/A. Escaped text such as "V1&lt;V2" is kept as decoded;
// only elements with child markup are flattened to their text.
func field(v *itemText) string {
	if v == nil {
		return domain.NotAvailable
	}
	text := strings.TrimSpace(v.Text)
	if len(v.Children) > 0 {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(v.Inner)); err == nil {
			text = strings.Join(strings.Fields(doc.Text()), " ")
		}
	}
	if text == "" {
		return domain.NotAvailable
	}
	return text
}

func buildPageURL(cfg config.KiprisConfig, page int) (string, error) {
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid kipris endpoint %s: %w", cfg.Endpoint, err)
	}

	query := parsed.Query()
	query.Set("cpcNumber", cfg.CPCNumber)
	query.Set("accessKey", cfg.APIKey)
	query.Set("pageNo", strconv.Itoa(page))
	query.Set("numOfRows", strconv.Itoa(cfg.RowsPerPage))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
