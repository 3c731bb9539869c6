package sources

import (
	"context"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/jobwatch/internal/model"
)

type greenhouseBoard struct {
	Jobs []greenhouseJob `json:"jobs"`
}

type greenhouseJob struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	AbsoluteURL string `json:"absolute_url"`
	Content     string `json:"content"`
	UpdatedAt   string `json:"updated_at"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
	Departments []struct {
		Name string `json:"name"`
	} `json:"departments"`
}

func (f *HTTPFetcher) fetchGreenhouse(ctx context.Context, c model.Company, slug string) ([]model.Posting, error) {
	u := f.greenhouseURL + "/v1/boards/" + url.PathEscape(strings.TrimSpace(slug)) + "/jobs?content=true"
	var board greenhouseBoard
	if err := f.getJSON(ctx, u, &board); err != nil {
		return nil, err
	}
	out := make([]model.Posting, 0, len(board.Jobs))
	for _, j := range board.Jobs {
		p := model.Posting{
			CompanyName:  c.CompanyName,
			EmployerName: employer(c),
			JobID:        strconv.FormatInt(j.ID, 10),
			Title:        strings.TrimSpace(j.Title),
			Location:     strings.TrimSpace(j.Location.Name),
			URL:          j.AbsoluteURL,
			Description:  plainText(html.UnescapeString(j.Content)),
			DatePosted:   j.UpdatedAt,
			SourceType:   string(model.SourceGreenhouse),
			WorkMode:     model.WorkModeUnknown,
		}
		if len(j.Departments) > 0 {
			p.Department = j.Departments[0].Name
		}
		out = append(out, p)
	}
	return out, nil
}

type leverPosting struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	HostedURL        string `json:"hostedUrl"`
	ApplyURL         string `json:"applyUrl"`
	DescriptionPlain string `json:"descriptionPlain"`
	CreatedAt        int64  `json:"createdAt"`
	WorkplaceType    string `json:"workplaceType"`
	Categories       struct {
		Location   string `json:"location"`
		Department string `json:"department"`
		Team       string `json:"team"`
	} `json:"categories"`
}

func (f *HTTPFetcher) fetchLever(ctx context.Context, c model.Company, slug string) ([]model.Posting, error) {
	u := f.leverURL + "/v0/postings/" + url.PathEscape(strings.TrimSpace(slug)) + "?mode=json"
	var postings []leverPosting
	if err := f.getJSON(ctx, u, &postings); err != nil {
		return nil, err
	}
	out := make([]model.Posting, 0, len(postings))
	for _, lp := range postings {
		link := lp.HostedURL
		if link == "" {
			link = lp.ApplyURL
		}
		p := model.Posting{
			CompanyName:  c.CompanyName,
			EmployerName: employer(c),
			JobID:        lp.ID,
			Title:        strings.TrimSpace(lp.Text),
			Location:     strings.TrimSpace(lp.Categories.Location),
			URL:          link,
			Description:  lp.DescriptionPlain,
			Department:   lp.Categories.Department,
			Team:         lp.Categories.Team,
			SourceType:   string(model.SourceLever),
			WorkMode:     leverWorkMode(lp.WorkplaceType),
		}
		if lp.CreatedAt > 0 {
			p.DatePosted = time.UnixMilli(lp.CreatedAt).UTC().Format(time.DateOnly)
		}
		out = append(out, p)
	}
	return out, nil
}

func leverWorkMode(s string) model.WorkMode {
	switch strings.ToLower(s) {
	case "remote":
		return model.WorkModeRemote
	case "hybrid":
		return model.WorkModeHybrid
	case "onsite", "on-site":
		return model.WorkModeOnsite
	default:
		return model.WorkModeUnknown
	}
}

func employer(c model.Company) string {
	if c.EmployerName != "" {
		return c.EmployerName
	}
	return c.CompanyName
}

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// plainText drops markup so keyword matching sees only visible words.
func plainText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(html.UnescapeString(s), " "))
}
