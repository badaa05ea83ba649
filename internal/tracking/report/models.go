package report

import "strconv"

const (
	DefaultObjectLimit      = 10
	DefaultAllUsageLimit    = 1000
	DefaultActiveUsersLimit = 30
	MaxLimit                = 10000
)

// Row is a report line that can be rendered as CSV.
type Row interface {
	Columns() []string
	Values() []string
}

type DatasetRow struct {
	DatasetID    string `json:"dataset_id"`
	DatasetTitle string `json:"dataset_title"`
	DatasetURL   string `json:"dataset_url"`
	Total        int64  `json:"total"`
}

func (DatasetRow) Columns() []string {
	return []string{"dataset_id", "dataset_title", "dataset_url", "total"}
}

func (r DatasetRow) Values() []string {
	return []string{r.DatasetID, r.DatasetTitle, r.DatasetURL, itoa(r.Total)}
}

type ResourceRow struct {
	ResourceID        string `json:"resource_id"`
	ResourceTitle     string `json:"resource_title"`
	ResourceURL       string `json:"resource_url"`
	PackageID         string `json:"package_id"`
	PackageTitle      string `json:"package_title"`
	PackageURL        string `json:"package_url"`
	OrganizationTitle string `json:"organization_title"`
	OrganizationURL   string `json:"organization_url"`
	OrganizationID    string `json:"organization_id"`
	Total             int64  `json:"total"`
}

func (ResourceRow) Columns() []string {
	return []string{
		"resource_id", "resource_title", "resource_url",
		"package_id", "package_title", "package_url",
		"organization_title", "organization_url", "organization_id",
		"total",
	}
}

func (r ResourceRow) Values() []string {
	return []string{
		r.ResourceID, r.ResourceTitle, r.ResourceURL,
		r.PackageID, r.PackageTitle, r.PackageURL,
		r.OrganizationTitle, r.OrganizationURL, r.OrganizationID,
		itoa(r.Total),
	}
}

type TokenRow struct {
	UserID       string `json:"user_id"`
	UserFullname string `json:"user_fullname"`
	UserName     string `json:"user_name"`
	UserURL      string `json:"user_url"`
	TokenName    string `json:"token_name"`
	Total        int64  `json:"total"`
}

func (TokenRow) Columns() []string {
	return []string{"user_id", "user_fullname", "user_name", "user_url", "token_name", "total"}
}

func (r TokenRow) Values() []string {
	return []string{r.UserID, r.UserFullname, r.UserName, r.UserURL, r.TokenName, itoa(r.Total)}
}

type UsageRow struct {
	ID                string `json:"id"`
	Timestamp         string `json:"timestamp"`
	UserID            string `json:"user_id"`
	UserName          string `json:"user_name"`
	UserFullname      string `json:"user_fullname"`
	TokenName         string `json:"token_name"`
	TrackingType      string `json:"tracking_type"`
	TrackingSubType   string `json:"tracking_sub_type"`
	ObjectType        string `json:"object_type"`
	ObjectID          string `json:"object_id"`
	ObjectTitle       string `json:"object_title"`
	ObjectURL         string `json:"object_url"`
	OrganizationURL   string `json:"organization_url"`
	OrganizationTitle string `json:"organization_title"`
}

func (UsageRow) Columns() []string {
	return []string{
		"id", "timestamp", "user_id", "user_name", "user_fullname", "token_name",
		"tracking_type", "tracking_sub_type", "object_type", "object_id",
		"object_title", "object_url", "organization_url", "organization_title",
	}
}

func (r UsageRow) Values() []string {
	return []string{
		r.ID, r.Timestamp, r.UserID, r.UserName, r.UserFullname, r.TokenName,
		r.TrackingType, r.TrackingSubType, r.ObjectType, r.ObjectID,
		r.ObjectTitle, r.ObjectURL, r.OrganizationURL, r.OrganizationTitle,
	}
}

type ActiveUsersRow struct {
	Day   string `json:"day"`
	Total int64  `json:"total"`
}

func (ActiveUsersRow) Columns() []string { return []string{"day", "total"} }

func (r ActiveUsersRow) Values() []string { return []string{r.Day, itoa(r.Total)} }

// Table flattens rows into a header and records.
func Table[T Row](rows []T) ([]string, [][]string) {
	var zero T
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.Values())
	}
	return zero.Columns(), records
}

// NormalizeLimit maps non-positive values to def and caps at MaxLimit.
func NormalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
