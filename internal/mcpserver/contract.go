package mcpserver

// PlanSchemaURI is the resource URI of PlanSchemaContract.
const PlanSchemaURI = "dagaz://plan-schema"

// PlanSchemaContract describes the plan format accepted by apply_plan and
// returned by plan_changes.
const PlanSchemaContract = `# Dagaz Plan Format

A plan is a JSON object:

` + "```" + `json
{
  "operations": [ /* applied in order */ ],
  "naturalLanguageSummary": "optional short summary",
  "ambiguities": ["optional notes for the user"]
}
` + "```" + `

## Operation

| field | required | values |
|---|---|---|
| action | always | create, update, delete |
| id | update, delete | id of an existing entity (never set it on create) |
| type | always | event, task |
| title, notes | no | string |
| date | no | YYYY-MM-DD, single-day event; omit when startDate is set |
| startDate, endDate | no | YYYY-MM-DD, multi-day span; endDate needs startDate and must not precede it |
| startTime, endTime | no | HH:MM, 24-hour |
| recurrence | no | daily, weekly, monthly, yearly |
| recurrenceEndDate | with recurrence | YYYY-MM-DD |
| dueDate | no | YYYY-MM-DD (tasks) |
| priority | no | high, medium, low (tasks, default medium) |
| status | no | todo, doing, done (tasks, default todo) |

## Rules

1. Omit fields you do not want to change. Explicit null is rejected.
2. Updates change only the fields present in the operation.
3. Updates and deletes for ids that do not exist are ignored when applied.
4. Created events without a date land on today; single-day events without
   times get 09:00-10:00, and a start time alone gets a one-hour end.

## Example

` + "```" + `json
{
  "operations": [
    {"action": "create", "type": "event", "title": "Gym", "date": "2026-10-19",
     "startTime": "18:00", "recurrence": "weekly", "recurrenceEndDate": "2026-11-16"},
    {"action": "update", "id": "ai_42", "type": "task", "status": "done"}
  ],
  "naturalLanguageSummary": "Added weekly gym sessions and closed the report task."
}
` + "```" + `
`
