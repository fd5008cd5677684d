package internal

type DocumentKind string

const (
	KindHTML  DocumentKind = "html"
	KindMHTML DocumentKind = "mhtml"
	KindPDF   DocumentKind = "pdf"
	KindText  DocumentKind = "text"
)

// RawDocument is one loaded articulation page. It lives for a single run.
type RawDocument struct {
	URL  string
	Kind DocumentKind
	HTML string
	Text string
}

type CandidateRow struct {
	Index   int
	Left    string
	Right   string
	Labeled bool
}

type Relationship string

const (
	RelationshipAnd  Relationship = "AND"
	RelationshipOr   Relationship = "OR"
	RelationshipNone Relationship = "NONE"
)

type ArticulationEntry struct {
	SourceCode   string       `json:"sourceCourseCode"`
	SourceName   string       `json:"sourceCourseName"`
	SourceUnits  string       `json:"sourceUnits"`
	DestCode     string       `json:"destCourseCode"`
	DestName     string       `json:"destCourseName"`
	DestUnits    string       `json:"destUnits"`
	Relationship Relationship `json:"relationshipType"`
	GroupIndex   *int         `json:"groupIndex,omitempty"`
	GroupSize    *int         `json:"groupSize,omitempty"`
	Row          int          `json:"row"`
	Suspicious   bool         `json:"suspicious,omitempty"`
	Notes        []string     `json:"notes,omitempty"`
}

// IsNoArticulation reports whether exactly one side is missing.
func (e ArticulationEntry) IsNoArticulation() bool {
	return (e.SourceCode == "") != (e.DestCode == "")
}

// Swapped returns a copy with source and destination exchanged.
func (e ArticulationEntry) Swapped() ArticulationEntry {
	out := e
	out.SourceCode, out.DestCode = e.DestCode, e.SourceCode
	out.SourceName, out.DestName = e.DestName, e.SourceName
	out.SourceUnits, out.DestUnits = e.DestUnits, e.SourceUnits
	out.Notes = append([]string(nil), e.Notes...)
	return out
}

// WithNote returns a copy carrying one more note.
func (e ArticulationEntry) WithNote(note string) ArticulationEntry {
	out := e
	out.Notes = append(append([]string(nil), e.Notes...), note)
	return out
}

type ArticulationBatch struct {
	SourceInstitution string              `json:"sourceInstitution"`
	DestInstitution   string              `json:"destInstitution"`
	Entries           []ArticulationEntry `json:"entries"`
}

type Rejection struct {
	Entry   ArticulationEntry `json:"entry"`
	Reasons []string          `json:"reasons"`
}

// JudgeRequest is the fixed-shape input of the semantic validation service.
type JudgeRequest struct {
	SourceCode  string   `json:"sourceCode"`
	SourceName  string   `json:"sourceName"`
	SourceUnits string   `json:"sourceUnits"`
	DestCode    string   `json:"destCode"`
	DestName    string   `json:"destName"`
	DestUnits   string   `json:"destUnits"`
	Issues      []string `json:"issues"`
}

// Judgment is the fixed-shape answer of the semantic validation service.
type Judgment struct {
	Valid               bool         `json:"valid"`
	CoursesRelated      bool         `json:"coursesRelated"`
	CodesMatchNames     bool         `json:"codesMatchNames"`
	ShouldSwap          bool         `json:"shouldSwap"`
	CorrectedSourceCode string       `json:"correctedSourceCode,omitempty"`
	CorrectedSourceName string       `json:"correctedSourceName,omitempty"`
	CorrectedDestCode   string       `json:"correctedDestCode,omitempty"`
	CorrectedDestName   string       `json:"correctedDestName,omitempty"`
	RelationshipType    Relationship `json:"relationshipType,omitempty"`
	Explanation         string       `json:"explanation"`
}

type RunRow struct {
	ID                int
	TraceID           string
	SourceInstitution string
	DestInstitution   string
	InputRef          string
	Orientation       string
	Strategy          string
	Status            string
	TimingsJSON       string
	CountsJSON        string
	CreatedAt         string
}
