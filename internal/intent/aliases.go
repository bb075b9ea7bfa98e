// Package intent maps arbitrary payload column names onto the stable
// intent names that rule documents reference.
package intent

// Alias tables map an intent column to the raw column names it may
// arrive under. Matching is canonical: lowercase with spaces and
// underscores stripped, so "Total Revenue" and "total_revenue" both
// hit "totalrevenue".

var genericAliases = map[string][]string{
	"period_like": {"period", "date", "month", "reporting_period", "posting_date",
		"txn_date", "transaction_date", "fiscal_period", "fiscal_month", "yearmonth", "ym"},
	"channel_like":  {"channel", "utm_channel"},
	"source_like":   {"source", "utm_source"},
	"medium_like":   {"medium", "utm_medium"},
	"campaign_like": {"campaign", "utm_campaign"},

	"revenue_like": {"revenue", "sales", "booked_revenue", "total_revenue"},
	"cogs_like":    {"cogs", "costofgoodssold", "cost_of_goods_sold"},

	"headcount_like": {"headcount", "employees_total", "employee_count"},
}

var domainAliases = map[string]map[string][]string{
	"cfo": {
		"booked_revenue_like": {"revenue_like", "revenue", "sales"},
		"ltv_like":            {"ltv", "lifetimevalue"},
		"cac_like":            {"cac", "customeraqc", "acquisitioncost"},
		"cash_in_like":        {"cashin", "cash_in"},
		"cash_out_like":       {"cashout", "cash_out"},
	},
	"cmo": {
		"impressions_like":        {"impressions"},
		"clicks_like":             {"clicks"},
		"leads_like":              {"leads", "conversions"},
		"spend_like":              {"spend", "cost", "adspend", "marketing_spend"},
		"total_spend_like":        {"total_spend", "total_cost", "overall_spend"},
		"attributed_revenue_like": {"attributed_revenue", "conv_value", "purchase_value"},
		"sessions_like":           {"sessions", "visits"},
		"utm_present_flag_like":   {"utm_present", "has_utm"},
	},
	"coo": {
		"output_units_like": {"output_units", "units_out", "produced_units", "completed_units",
			"throughput_units", "good_units", "units_produced"},
		"input_units_like": {"input_units", "units_in", "raw_units", "started_units",
			"units_started", "materials_units"},
		"capacity_used_like":      {"capacity_used", "utilization", "utilisation"},
		"capacity_available_like": {"capacity_available", "available_capacity"},
		"downtime_hours_like":     {"downtime_hours", "downtime", "mttr_hours"},
		"available_hours_like":    {"available_hours", "planned_hours"},
		"output_per_employee":     {"output_per_employee", "rev_per_employee", "revenue_per_employee"},
		"orders_completed_like": {"orders_completed", "completed_orders", "orders_done",
			"orders_fulfilled", "shipments_completed", "closed_orders"},
		"orders_started_like": {"orders_started", "orders_created", "new_orders", "orders_opened"},
	},
	"chro": {
		"headcount_total_like": {"headcount_like", "headcount", "employees_total"},
		"new_hires_like":       {"new_hires", "joins", "hires"},
		"exits_like":           {"exits", "separations", "attrition_count"},
		"job_openings_like":    {"job_openings", "open_roles", "requisitions_open"},
	},
	"cpo": {
		"salary_like":          {"salary", "ctc", "compensation"},
		"hire_type_like":       {"hire_type", "employment_type"},
		"tenure_like":          {"tenure_months", "months_in_company", "tenure"},
		"grade_like":           {"grade", "band", "level"},
		"join_date_like":       {"join_date", "doj", "date_of_joining"},
		"requisition_date_like": {"requisition_date", "req_date", "opened_on"},
		"total_revenue_like":   {"total_revenue", "revenue"},
		"headcount_total_like": {"headcount_like", "headcount", "employees_total"},
		"output_per_employee": {"output_per_employee", "rev_per_employee", "revenue_per_employee",
			"productivity_per_head", "output_per_head"},
		"expected_output_per_employee_like": {"expected_output_per_employee",
			"monthly_output_expected", "target_output_per_employee"},
	},
}
