package upstream

import "encoding/json"

// Record carries the raw JSON of a decoded upstream record.
type Record struct {
	Raw json.RawMessage `json:"-"`
}

// JSON returns the record as received.
func (r *Record) JSON() json.RawMessage {
	return r.Raw
}

func (r *Record) setRaw(raw json.RawMessage) {
	r.Raw = raw
}

// Department is served by /departments/ (without classes) and /department/{id}.
type Department struct {
	Record
	ID      int64   `json:"id"`
	IID     string  `json:"iid"`
	Name    string  `json:"name"`
	Classes []int64 `json:"classes"`
}

// Building is served by /buildings/.
type Building struct {
	Record
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbr"`
}

// Room is served by /rooms/.
type Room struct {
	Record
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	Building int64  `json:"building"`
}

// Course is served by /courses/. Degree is null for courses that are not degrees.
type Course struct {
	Record
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Abbreviation string  `json:"abbr"`
	Degree       *string `json:"deg"`
}

// Class is served by /class/{id}.
type Class struct {
	Record
	ID           int64   `json:"id"`
	IID          string  `json:"iid"`
	Name         string  `json:"name"`
	Abbreviation string  `json:"abbr"`
	Credits      int     `json:"ects"`
	Department   *int64  `json:"dept"`
	Instances    []int64 `json:"instances"`
}

// ClassInstance is served by /class_inst/{id}.
type ClassInstance struct {
	Record
	ID           int64           `json:"id"`
	ClassID      int64           `json:"class_id"`
	DepartmentID *int64          `json:"department_id"`
	Year         int             `json:"year"`
	Period       int             `json:"period"`
	Info         json.RawMessage `json:"info"`
	Turns        []int64         `json:"turns"`
	Enrollments  []int64         `json:"enrollments"`

	// Events and Files are embedded records, decoded and validated one by one.
	Events []*ClassEvent `json:"-"`
	Files  []*ClassFile  `json:"-"`
}

// ClassEvent is embedded in a class instance. Date is an ISO date, the times are "15:04".
type ClassEvent struct {
	Record
	ID         int64   `json:"id"`
	InstanceID int64   `json:"instance_id"`
	Date       string  `json:"date"`
	From       *string `json:"from_time"`
	To         *string `json:"to_time"`
	Type       string  `json:"type"`
	Season     string  `json:"season"`
	Info       *string `json:"info"`
	Note       *string `json:"note"`
}

// ClassFile is embedded in a class instance. Hash is null until upstream downloaded the file.
type ClassFile struct {
	Record
	ID       int64   `json:"id"`
	Hash     *string `json:"hash"`
	Mime     string  `json:"mime"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Type     string  `json:"type"`
	Uploaded string  `json:"upload_datetime"`
	Uploader string  `json:"uploader"`
}

// Turn is served by /turn/{id}.
type Turn struct {
	Record
	ID              int64   `json:"id"`
	ClassInstanceID int64   `json:"class_instance_id"`
	Type            string  `json:"type"`
	Number          int     `json:"number"`
	Restrictions    string  `json:"restrictions"`
	State           string  `json:"state"`
	Instances       []int64 `json:"instances"`
	Students        []int64 `json:"students"`
	Teachers        []int64 `json:"teachers"`
}

// TurnInstance is served by /turn_inst/{id}. Start and End are minutes since midnight.
type TurnInstance struct {
	Record
	ID      int64  `json:"id"`
	TurnID  int64  `json:"turn_id"`
	Weekday *int   `json:"weekday"`
	Start   *int   `json:"start"`
	End     *int   `json:"end"`
	Room    *int64 `json:"room"`
}

// Enrollment is served by /enrollment/{id}.
type Enrollment struct {
	Record
	ID               int64   `json:"id"`
	Student          int64   `json:"student"`
	ClassInstanceID  int64   `json:"class_instance_id"`
	StudentYear      *int    `json:"student_year"`
	Attempt          *int    `json:"attempt"`
	Statutes         string  `json:"statutes"`
	Attendance       *bool   `json:"attendance"`
	AttendanceDate   *string `json:"attendance_date"`
	NormalGrade      *int    `json:"normal_grade"`
	NormalDate       *string `json:"normal_grade_date"`
	RecourseGrade    *int    `json:"recourse_grade"`
	RecourseDate     *string `json:"recourse_grade_date"`
	SpecialGrade     *int    `json:"special_grade"`
	SpecialDate      *string `json:"special_grade_date"`
	ImprovementGrade *int    `json:"improvement_grade"`
	ImprovementDate  *string `json:"improvement_grade_date"`
}

// Student is served by /students/ and /student/{id}.
type Student struct {
	Record
	ID           int64  `json:"id"`
	IID          string `json:"iid"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbr"`
	Course       *int64 `json:"course"`
}

// Teacher is served by /teachers/.
type Teacher struct {
	Record
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	FirstYear   *int    `json:"first_year"`
	LastYear    *int    `json:"last_year"`
	Departments []int64 `json:"depts"`
}

// Keys every record of a kind must carry.
var (
	departmentKeys    = []string{"id", "name"}
	departmentDetail  = []string{"id", "name", "classes"}
	buildingKeys      = []string{"id", "name", "abbr"}
	roomKeys          = []string{"id", "name", "type", "building"}
	courseKeys        = []string{"id", "name", "abbr", "deg"}
	classKeys         = []string{"id", "name", "abbr", "ects", "dept", "instances"}
	classInstanceKeys = []string{"id", "class_id", "department_id", "year", "period", "info", "turns", "enrollments", "events", "files"}
	classEventKeys    = []string{"id", "instance_id", "date", "from_time", "to_time", "type", "season", "info", "note"}
	classFileKeys     = []string{"id", "hash", "mime", "name", "size", "type", "upload_datetime", "uploader"}
	turnKeys          = []string{"id", "class_instance_id", "type", "number", "instances", "students", "teachers"}
	turnInstanceKeys  = []string{"id", "turn_id", "weekday", "start", "end", "room"}
	studentKeys       = []string{"id", "name", "abbr", "course"}
	teacherKeys       = []string{"id", "name", "first_year", "last_year", "depts"}
)

var enrollmentKeys = []string{
	"id", "student", "class_instance_id", "student_year", "attempt", "statutes",
	"attendance", "attendance_date",
	"normal_grade", "normal_grade_date", "recourse_grade", "recourse_grade_date",
	"special_grade", "special_grade_date", "improvement_grade", "improvement_grade_date",
}
