package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/domain/task"
	"gcp-billing-cost/ingest/source"
)

// identifiers end up inside a backquoted table path, so they are restricted rather than escaped.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// TableName derives the export table of a billing account, e.g.
// gcp_billing_export_v1_01ABCD_234567_89ABCD.
func TableName(prefix, billingAccountID string) string {
	return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(billingAccountID, "-", "_"))
}

func tablePath(project, dataset, table string) (string, error) {
	for _, id := range [][2]string{
		{"secret_data.project_id", project},
		{"task_options.billing_dataset", dataset},
		{"billing_table", table},
	} {
		if !identifierPattern.MatchString(id[1]) {
			return "", plugin.InvalidParameterType(id[0], "BigQuery identifier")
		}
	}
	return fmt.Sprintf("`%s.%s.%s`", project, dataset, table), nil
}

const costColumns = `
  TIMESTAMP_TRUNC(usage_start_time, DAY) AS billed_at,
  billing_account_id,
  service.description AS product,
  sku.description AS sku_description,
  project.id AS project_id,
  project.name AS project_name,
  IFNULL(location.region, 'global') AS region_code,
  currency,
  currency_conversion_rate,
  usage.pricing_unit AS pricing_unit,
  invoice.month AS invoice_month,
  cost_type,
  TO_JSON_STRING(labels) AS labels,
  SUM(cost)
    + SUM(IFNULL((SELECT SUM(c.amount) FROM UNNEST(credits) c), 0)) AS cost,
  SUM(usage.amount_in_pricing_units) AS usage_quantity`

// CostQuery aggregates the export per day and dimension since start. Credits are negative
// amounts added to the base cost. projectID "*" keeps every project.
func CostQuery(project, dataset, table string, start time.Time, projectID string) (source.Query, error) {
	path, err := tablePath(project, dataset, table)
	if err != nil {
		return source.Query{}, err
	}

	params := []source.Param{{Name: "start", Value: task.Midnight(start)}}
	where := "WHERE usage_start_time >= @start"
	if projectID != task.WildcardProject {
		where += "\n  AND project.id = @project_id"
		params = append(params, source.Param{Name: "project_id", Value: projectID})
	}

	sql := fmt.Sprintf(`SELECT%s
FROM %s
%s
GROUP BY 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13
ORDER BY billed_at DESC`, costColumns, path, where)

	return source.Query{SQL: sql, Params: params}, nil
}

// ProjectsQuery lists the distinct projects billed since start.
func ProjectsQuery(project, dataset, table string, start time.Time) (source.Query, error) {
	path, err := tablePath(project, dataset, table)
	if err != nil {
		return source.Query{}, err
	}
	sql := fmt.Sprintf(`SELECT DISTINCT project.id AS project_id, project.name AS project_name
FROM %s
WHERE usage_start_time >= @start`, path)
	return source.Query{SQL: sql, Params: []source.Param{{Name: "start", Value: task.MonthStart(start)}}}, nil
}
