package services

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"

	"github.com/visatrack/timeline-backend/models"
	"github.com/visatrack/timeline-backend/shared"
)

const bulletinUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// compactBulletinDateLayout is the fixed cell format the bulletin prints
// concrete cutoff dates in: 2-digit day, abbreviated month, 2-digit year.
const compactBulletinDateLayout = "02Jan06"

// countryColumnLabels maps the human-readable country choice to the exact
// normalized column header used in the published tables.
var countryColumnLabels = map[string]string{
	"Rest of World": "ALL CHARGEABILITY AREAS EXCEPT THOSE LISTED",
	"CHINA":         "CHINA- MAINLAND BORN",
	"INDIA":         "INDIA",
	"MEXICO":        "MEXICO",
	"PHILIPPINES":   "PHILIPPINES",
}

// preferenceRowLabels maps the preference category to its ordinal row label.
var preferenceRowLabels = map[string]string{
	"EB-1": "1ST",
	"EB-2": "2ND",
	"EB-3": "3RD",
}

// BulletinResolverConfiguration holds configuration parameters for the bulletin resolver
type BulletinResolverConfiguration struct {
	BaseURL            string        // Visa bulletin base URL
	HTTPRequestTimeout time.Duration // Maximum time to wait for HTTP responses
	ProbeRateLimit     time.Duration // Minimum delay between candidate probes
}

// NewDefaultBulletinResolverConfiguration returns production-ready default configuration
func NewDefaultBulletinResolverConfiguration() *BulletinResolverConfiguration {
	return &BulletinResolverConfiguration{
		BaseURL:            "https://travel.state.gov/content/travel/en/legal/visa-law0/visa-bulletin",
		HTTPRequestTimeout: 10 * time.Second,
		ProbeRateLimit:     500 * time.Millisecond,
	}
}

// BulletinResolver locates the currently published visa bulletin, fetches it
// and extracts the filing-date and final-action cutoff values for a
// (country, preference) pair.
type BulletinResolver struct {
	configuration  *BulletinResolverConfiguration
	httpClient     *http.Client
	rateLimiter    *shared.HTTPRequestRateLimiter
	tableExtractor *HTMLTableExtractor
	classifier     TableClassifier
	serviceMetrics *shared.ServiceMetrics
	clock          func() time.Time
}

// NewBulletinResolver creates a new bulletin resolver with the specified configuration
func NewBulletinResolver(config *BulletinResolverConfiguration) *BulletinResolver {
	if config == nil {
		config = NewDefaultBulletinResolverConfiguration()
	} else {
		if config.BaseURL == "" {
			config.BaseURL = NewDefaultBulletinResolverConfiguration().BaseURL
		}
		if config.HTTPRequestTimeout <= 0 {
			config.HTTPRequestTimeout = 10 * time.Second
		}
		if config.ProbeRateLimit < 0 {
			config.ProbeRateLimit = 0
		}
	}

	clientFactory := shared.NewHTTPClientFactory(config.HTTPRequestTimeout)

	return &BulletinResolver{
		configuration:  config,
		httpClient:     clientFactory.CreateOptimizedHTTPClient(config.HTTPRequestTimeout),
		rateLimiter:    shared.NewHTTPRequestRateLimiter(config.ProbeRateLimit),
		tableExtractor: NewHTMLTableExtractor(),
		classifier:     NewEmploymentTableClassifier(),
		serviceMetrics: shared.NewServiceMetrics("Bulletin_Resolver"),
		clock:          time.Now,
	}
}

// SetClock overrides the resolver's notion of "today". Tests inject a fixed
// clock here; candidate-month selection depends on it.
func (resolver *BulletinResolver) SetClock(clock func() time.Time) {
	resolver.clock = clock
}

// SetClassifier swaps the table classification heuristic.
func (resolver *BulletinResolver) SetClassifier(classifier TableClassifier) {
	resolver.classifier = classifier
}

// GetServiceMetrics returns the resolver's metrics tracker.
func (resolver *BulletinResolver) GetServiceMetrics() *shared.ServiceMetrics {
	return resolver.serviceMetrics
}

// candidateMonths returns the months to probe: the next calendar month first,
// then the current one. The next month is computed by adding 32 days to the
// first of the current month, which lands on day 2..4 of the following month
// regardless of month length.
func (resolver *BulletinResolver) candidateMonths(today time.Time) []time.Time {
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	return []time.Time{
		firstOfMonth.AddDate(0, 0, 32),
		firstOfMonth,
	}
}

// bulletinURL builds the deterministic URL for one candidate month.
func (resolver *BulletinResolver) bulletinURL(target time.Time) string {
	monthName := strings.ToLower(target.Month().String())
	return fmt.Sprintf("%s/%d/visa-bulletin-for-%s-%d.html",
		resolver.configuration.BaseURL, target.Year(), monthName, target.Year())
}

// LocateCurrentBulletin probes the candidate months in order and returns the
// first bulletin that answers with HTTP 200. A timeout counts the same as a
// non-success status: the next candidate is tried. When neither candidate
// succeeds the caller gets BULLETIN_UNAVAILABLE and must treat it as "no
// bulletin data", not as a fatal condition.
func (resolver *BulletinResolver) LocateCurrentBulletin() (models.BulletinRef, error) {
	today := resolver.clock()
	var attemptedURLs []string

	for _, target := range resolver.candidateMonths(today) {
		url := resolver.bulletinURL(target)
		attemptedURLs = append(attemptedURLs, url)

		logger := logrus.WithFields(logrus.Fields{
			"component": "BulletinResolver",
			"month":     target.Month().String(),
			"year":      target.Year(),
			"url":       url,
		})

		resolver.rateLimiter.EnforceRateLimit()

		request, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			logger.WithError(err).Warn("Failed to build bulletin probe request")
			continue
		}
		shared.SetBrowserLikeHeaders(request, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

		response, err := resolver.httpClient.Do(request)
		if err != nil {
			logger.WithError(err).Warn("Bulletin probe failed, trying next candidate")
			continue
		}
		response.Body.Close()

		if response.StatusCode == http.StatusOK {
			logger.Info("Located published visa bulletin")
			return models.BulletinRef{Month: target.Month(), Year: target.Year(), URL: url}, nil
		}

		logger.WithField("status_code", response.StatusCode).Debug("Candidate month not published")
	}

	return models.BulletinRef{}, shared.NewServiceError(
		shared.ErrorCategoryNetwork,
		shared.CodeBulletinUnavailable,
		"no published visa bulletin found for the current or next month",
		"BulletinResolver",
		"LocateCurrentBulletin",
		false,
		nil,
	).WithDetails(map[string]interface{}{"attempted_urls": attemptedURLs})
}

// FetchDocument retrieves the bulletin page and parses it into a goquery
// document.
func (resolver *BulletinResolver) FetchDocument(url string) (*goquery.Document, error) {
	collector := colly.NewCollector(colly.UserAgent(bulletinUserAgent))
	collector.SetRequestTimeout(resolver.configuration.HTTPRequestTimeout)

	collector.OnRequest(func(request *colly.Request) {
		request.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		request.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	var document *goquery.Document
	var parseErr error
	collector.OnResponse(func(response *colly.Response) {
		document, parseErr = goquery.NewDocumentFromReader(bytes.NewReader(response.Body))
	})

	resolver.rateLimiter.EnforceRateLimit()

	if err := collector.Visit(url); err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryNetwork, shared.CodeBulletinUnavailable,
			"BulletinResolver", "FetchDocument", false).WithDetails(map[string]interface{}{"url": url})
	}
	if parseErr != nil {
		return nil, shared.WrapError(parseErr, shared.ErrorCategoryParse, shared.CodeTablesNotFound,
			"BulletinResolver", "FetchDocument", false).WithDetails(map[string]interface{}{"url": url})
	}
	if document == nil {
		return nil, shared.NewServiceError(shared.ErrorCategoryNetwork, shared.CodeBulletinUnavailable,
			"bulletin fetch produced no document", "BulletinResolver", "FetchDocument", false, nil).
			WithDetails(map[string]interface{}{"url": url})
	}

	return document, nil
}

// ExtractCutoffs runs the table pipeline over a fetched bulletin document and
// returns the filing-date and final-action cutoff values for the given
// country and preference.
func (resolver *BulletinResolver) ExtractCutoffs(document *goquery.Document, country, preference string) (models.CutoffValue, models.CutoffValue, error) {
	columnKey, err := CountryColumnLabel(country)
	if err != nil {
		return models.CutoffValue{}, models.CutoffValue{}, err
	}
	rowKey, err := PreferenceRowLabel(preference)
	if err != nil {
		return models.CutoffValue{}, models.CutoffValue{}, err
	}

	grids := resolver.tableExtractor.ExtractTables(document)

	filingGrid, finalGrid, err := resolver.classifier.SelectEmploymentTables(grids)
	if err != nil {
		return models.CutoffValue{}, models.CutoffValue{}, err
	}

	filingTable := BuildCutoffTable(filingGrid)
	finalTable := BuildCutoffTable(finalGrid)

	filingRaw, err := filingTable.Lookup(rowKey, columnKey)
	if err != nil {
		return models.CutoffValue{}, models.CutoffValue{}, err
	}
	finalRaw, err := finalTable.Lookup(rowKey, columnKey)
	if err != nil {
		return models.CutoffValue{}, models.CutoffValue{}, err
	}

	filingValue, err := ParseCutoffCell(filingRaw)
	if err != nil {
		return models.CutoffValue{}, models.CutoffValue{}, err
	}
	finalValue, err := ParseCutoffCell(finalRaw)
	if err != nil {
		return models.CutoffValue{}, models.CutoffValue{}, err
	}

	logrus.WithFields(logrus.Fields{
		"component":     "BulletinResolver",
		"country":       country,
		"preference":    preference,
		"filing_cutoff": filingValue.String(),
		"final_cutoff":  finalValue.String(),
	}).Info("Extracted cutoff values from bulletin")

	return filingValue, finalValue, nil
}

// ResolveCutoffs performs the full locate, fetch, extract sequence.
func (resolver *BulletinResolver) ResolveCutoffs(country, preference string) (models.CutoffPair, error) {
	startTime := time.Now()

	pair, err := resolver.resolveCutoffs(country, preference)
	resolver.serviceMetrics.RecordRequest(err == nil, time.Since(startTime))

	return pair, err
}

func (resolver *BulletinResolver) resolveCutoffs(country, preference string) (models.CutoffPair, error) {
	ref, err := resolver.LocateCurrentBulletin()
	if err != nil {
		return models.CutoffPair{}, err
	}

	document, err := resolver.FetchDocument(ref.URL)
	if err != nil {
		return models.CutoffPair{}, err
	}

	filingValue, finalValue, err := resolver.ExtractCutoffs(document, country, preference)
	if err != nil {
		return models.CutoffPair{}, err
	}

	return models.CutoffPair{
		FilingCutoff:      filingValue,
		FinalActionCutoff: finalValue,
		Country:           country,
		Preference:        preference,
		Bulletin:          ref,
	}, nil
}

// CountryColumnLabel resolves the human-readable country choice to the
// normalized bulletin column header. Matching is case-insensitive; unknown
// countries are rejected, not guessed.
func CountryColumnLabel(country string) (string, error) {
	for name, label := range countryColumnLabels {
		if strings.EqualFold(name, country) {
			return NormalizeTableLabel(label), nil
		}
	}

	return "", shared.NewServiceError(
		shared.ErrorCategoryValidation,
		shared.CodeInputOutOfRange,
		fmt.Sprintf("unsupported country %q", country),
		"BulletinResolver",
		"CountryColumnLabel",
		false,
		nil,
	).WithDetails(map[string]interface{}{"supported_countries": models.SupportedCountries})
}

// PreferenceRowLabel resolves the preference category to its ordinal row label.
func PreferenceRowLabel(preference string) (string, error) {
	for name, label := range preferenceRowLabels {
		if strings.EqualFold(name, preference) {
			return label, nil
		}
	}

	return "", shared.NewServiceError(
		shared.ErrorCategoryValidation,
		shared.CodeInputOutOfRange,
		fmt.Sprintf("unsupported preference category %q", preference),
		"BulletinResolver",
		"PreferenceRowLabel",
		false,
		nil,
	).WithDetails(map[string]interface{}{"supported_preferences": models.SupportedPreferences})
}

// ParseCutoffCell parses one bulletin table cell: "C" means current, "U"
// means unavailable, anything else must be a compact date like "01JAN25".
// Unparsable text is a hard failure, never a silent default.
func ParseCutoffCell(raw string) (models.CutoffValue, error) {
	normalized := NormalizeTableLabel(raw)

	switch normalized {
	case "C":
		return models.Current(), nil
	case "U":
		return models.Unavailable(), nil
	}

	date, err := parseCompactBulletinDate(normalized)
	if err != nil {
		return models.CutoffValue{}, shared.NewServiceError(
			shared.ErrorCategoryParse,
			shared.CodeDateFormatInvalid,
			fmt.Sprintf("cell %q is not C, U or a %s date", raw, compactBulletinDateLayout),
			"BulletinResolver",
			"ParseCutoffCell",
			false,
			err,
		).WithDetails(map[string]interface{}{"raw_cell": raw})
	}

	return models.OnDate(date), nil
}

// parseCompactBulletinDate parses "01JAN25" style cells. The bulletin prints
// month abbreviations uppercased, which time.Parse rejects, so the month is
// re-cased before parsing.
func parseCompactBulletinDate(value string) (time.Time, error) {
	if len(value) != len(compactBulletinDateLayout) {
		return time.Time{}, fmt.Errorf("expected %d characters, got %d", len(compactBulletinDateLayout), len(value))
	}

	month := value[2:5]
	recased := value[:2] + strings.ToUpper(month[:1]) + strings.ToLower(month[1:]) + value[5:]

	return time.Parse(compactBulletinDateLayout, recased)
}
