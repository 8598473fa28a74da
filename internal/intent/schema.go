package intent

// The schema tables below are the single place where the closed vocabulary of
// the planner is declared: which filter keys exist, which document paths they
// touch, which enum values translate, and which tokens may group or sort.
// Everything the sanitizer and the pipeline generator allow flows from here,
// so the injection-safety property is auditable in one file.

// Filter value kinds.
const (
	KindEnum      = "enum"       // closed-vocabulary value, exact match
	KindEnumNotIn = "enum_notin" // closed-vocabulary exclusion list
	KindText      = "text"       // free text, case-insensitive partial match
	KindBool      = "bool"
	KindDate      = "date"     // absolute bound ("2024-01-31", RFC3339, or "now")
	KindWindow    = "window"   // relative window token ("last_week", "last_30_days")
	KindDuration  = "duration" // numeric day-range on a computed duration
)

// FilterField describes one allow-listed filter key.
type FilterField struct {
	Path      string            // concrete document path
	Kind      string            // one of the Kind* constants
	Secondary bool              // lives on an embedded sub-document
	Enum      map[string]string // value translation table for enum kinds
}

// GroupKey describes one resolvable group-by token.
type GroupKey struct {
	Expr       string // document path the group key reads
	Unwind     string // array path that must be unwound first, if any
	DateFormat string // $dateToString format for date buckets, if any
}

// EntitySchema is the full closed vocabulary for one collection.
type EntitySchema struct {
	Name              string
	Collection        string
	Filters           map[string]FilterField
	GroupTokens       map[string]GroupKey
	SortFields        map[string]string // synonym -> sortable document path
	DefaultProjection []string
	ProjectionAllow   map[string]bool
	GroupDisplay      []string // display fields carried per item in grouped details
}

// Enum translation tables. Canonical forms map to themselves so sanitization
// is idempotent.
var stateValues = map[string]string{
	"open":        "Open",
	"backlog":     "Backlog",
	"todo":        "Backlog",
	"in progress": "InProgress",
	"in_progress": "InProgress",
	"inprogress":  "InProgress",
	"started":     "InProgress",
	"active":      "InProgress",
	"completed":   "Completed",
	"complete":    "Completed",
	"done":        "Completed",
	"closed":      "Completed",
	"resolved":    "Completed",
	"verified":    "Verified",
	"cancelled":   "Cancelled",
	"canceled":    "Cancelled",
}

var priorityValues = map[string]string{
	"urgent":      "URGENT",
	"critical":    "URGENT",
	"blocker":     "URGENT",
	"high":        "HIGH",
	"medium":      "MEDIUM",
	"normal":      "MEDIUM",
	"low":         "LOW",
	"minor":       "LOW",
	"none":        "NONE",
	"no priority": "NONE",
}

// workItem is the single supported entity in this deployment. The registry
// shape allows more entities later; the sanitizer currently forces every
// intent onto this one.
var workItemSchema = &EntitySchema{
	Name:       "workItem",
	Collection: "workItem",
	Filters: map[string]FilterField{
		"state":        {Path: "state", Kind: KindEnum, Enum: stateValues},
		"state_not_in": {Path: "state", Kind: KindEnumNotIn, Enum: stateValues},
		"priority":     {Path: "priority", Kind: KindEnum, Enum: priorityValues},
		"title":        {Path: "title", Kind: KindText},
		"displayBugNo": {Path: "displayBugNo", Kind: KindText},
		"isArchived":   {Path: "isArchived", Kind: KindBool},

		"assignee":      {Path: "assignees.name", Kind: KindText, Secondary: true},
		"project_name":  {Path: "project.name", Kind: KindText, Secondary: true},
		"cycle_name":    {Path: "cycle.name", Kind: KindText, Secondary: true},
		"module_name":   {Path: "module.name", Kind: KindText, Secondary: true},
		"business_name": {Path: "business.name", Kind: KindText, Secondary: true},
		"label_name":    {Path: "labels.name", Kind: KindText, Secondary: true},

		"createdTimeStamp_from":   {Path: "createdTimeStamp", Kind: KindDate},
		"createdTimeStamp_to":     {Path: "createdTimeStamp", Kind: KindDate},
		"createdTimeStamp_within": {Path: "createdTimeStamp", Kind: KindWindow},
		"updatedTimeStamp_from":   {Path: "updatedTimeStamp", Kind: KindDate},
		"updatedTimeStamp_to":     {Path: "updatedTimeStamp", Kind: KindDate},
		"updatedTimeStamp_within": {Path: "updatedTimeStamp", Kind: KindWindow},
		"dueDate_from":            {Path: "dueDate", Kind: KindDate},
		"dueDate_to":              {Path: "dueDate", Kind: KindDate},
		"dueDate_within":          {Path: "dueDate", Kind: KindWindow},

		"duration_days": {Path: "", Kind: KindDuration},
	},
	GroupTokens: map[string]GroupKey{
		"priority": {Expr: "priority"},
		"state":    {Expr: "state"},
		"project":  {Expr: "project.name"},
		"assignee": {Expr: "assignees.name", Unwind: "assignees"},
		"cycle":    {Expr: "cycle.name"},
		"module":   {Expr: "module.name"},
		"business": {Expr: "business.name"},
		"day":      {Expr: "createdTimeStamp", DateFormat: "%Y-%m-%d"},
		"week":     {Expr: "createdTimeStamp", DateFormat: "%G-%V"},
		"month":    {Expr: "createdTimeStamp", DateFormat: "%Y-%m"},
	},
	SortFields: map[string]string{
		"created":          "createdTimeStamp",
		"created_at":       "createdTimeStamp",
		"creation":         "createdTimeStamp",
		"createdtimestamp": "createdTimeStamp",
		"updated":          "updatedTimeStamp",
		"updated_at":       "updatedTimeStamp",
		"updatedtimestamp": "updatedTimeStamp",
		"due":              "dueDate",
		"due_date":         "dueDate",
		"duedate":          "dueDate",
		"priority":         "priority",
		"state":            "state",
		"status":           "state",
		"title":            "title",
		"name":             "title",
	},
	DefaultProjection: []string{
		"displayBugNo", "title", "state", "priority",
		"assignees.name", "project.name", "dueDate",
		"createdTimeStamp", "updatedTimeStamp",
	},
	ProjectionAllow: map[string]bool{
		"displayBugNo":     true,
		"title":            true,
		"state":            true,
		"priority":         true,
		"assignees.name":   true,
		"project.name":     true,
		"cycle.name":       true,
		"module.name":      true,
		"business.name":    true,
		"labels.name":      true,
		"dueDate":          true,
		"createdTimeStamp": true,
		"updatedTimeStamp": true,
	},
	GroupDisplay: []string{"displayBugNo", "title", "state", "priority"},
}

// entitySynonyms maps the things users call work items to the canonical
// entity name.
var entitySynonyms = map[string]string{
	"workitem":  "workItem",
	"work_item": "workItem",
	"workitems": "workItem",
	"bug":       "workItem",
	"bugs":      "workItem",
	"task":      "workItem",
	"tasks":     "workItem",
	"issue":     "workItem",
	"issues":    "workItem",
	"ticket":    "workItem",
	"tickets":   "workItem",
}

// keySynonyms maps legacy or colloquial filter keys to canonical ones before
// the allow-list check.
var keySynonyms = map[string]string{
	"status":        "state",
	"label":         "label_name",
	"labels":        "label_name",
	"project":       "project_name",
	"cycle":         "cycle_name",
	"module":        "module_name",
	"business":      "business_name",
	"assigned_to":   "assignee",
	"assignee_name": "assignee",
	"bug_no":        "displayBugNo",
	"bugno":         "displayBugNo",
	"duration":      "duration_days",
	"age_days":      "duration_days",
}

// dateKeyBases maps loose date-key bases to canonical timestamp fields for
// the *_from/_to/_within suffix normalization.
var dateKeyBases = map[string]string{
	"created":   "createdTimeStamp",
	"creation":  "createdTimeStamp",
	"date":      "createdTimeStamp",
	"timestamp": "createdTimeStamp",
	"updated":   "updatedTimeStamp",
	"modified":  "updatedTimeStamp",
	"due":       "dueDate",
}

// groupSynonyms maps loose group tokens to canonical ones.
var groupSynonyms = map[string]string{
	"status":     "state",
	"assignees":  "assignee",
	"projects":   "project",
	"cycles":     "cycle",
	"modules":    "module",
	"businesses": "business",
	"priorities": "priority",
}

// DefaultSchema returns the schema for the single supported entity.
func DefaultSchema() *EntitySchema {
	return workItemSchema
}

// CanonicalEntity resolves an entity name or synonym. Unknown names resolve
// to the supported entity: even if the LLM invents an entity, the plan stays
// on known-good ground.
func CanonicalEntity(name string) string {
	if canonical, ok := entitySynonyms[normalizeToken(name)]; ok {
		return canonical
	}
	return workItemSchema.Name
}
