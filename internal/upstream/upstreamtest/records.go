package upstreamtest

import (
	"fmt"
	"maps"
	"slices"

	"github.com/tidwall/sjson"
)

// Fields overrides or adds top-level keys of a record. Values are raw JSON.
type Fields map[string]string

// Class renders a /class/{id} body with no department and no instances.
func Class(id int64, fields Fields) string {
	return with(fmt.Sprintf(`{"id":%d,"iid":"c%d","name":"C%d","abbr":"C%d","ects":6,"dept":null,"instances":[]}`,
		id, id, id, id), fields)
}

// ClassInstance renders a /class_inst/{id} body of 2024, first period, without children.
func ClassInstance(id, classID int64, fields Fields) string {
	return with(fmt.Sprintf(`{"id":%d,"class_id":%d,"department_id":null,"year":2024,"period":1,"info":null,`+
		`"turns":[],"enrollments":[],"events":[],"files":[]}`, id, classID), fields)
}

// Enrollment renders an /enrollment/{id} body with every grade and date unset.
func Enrollment(id, student, classInstanceID int64, fields Fields) string {
	return with(fmt.Sprintf(`{"id":%d,"student":%d,"class_instance_id":%d,"student_year":null,"attempt":null,`+
		`"statutes":"","attendance":null,"attendance_date":null,`+
		`"normal_grade":null,"normal_grade_date":null,"recourse_grade":null,"recourse_grade_date":null,`+
		`"special_grade":null,"special_grade_date":null,"improvement_grade":null,"improvement_grade_date":null}`,
		id, student, classInstanceID), fields)
}

// Teacher renders one entry of /teachers/.
func Teacher(id int64, name string, depts string, fields Fields) string {
	return with(fmt.Sprintf(`{"id":%d,"name":%q,"first_year":null,"last_year":null,"depts":%s}`, id, name, depts), fields)
}

// Event renders one entry of the events of a class instance.
func Event(id, classInstanceID int64, date string, fields Fields) string {
	return with(fmt.Sprintf(`{"id":%d,"instance_id":%d,"date":%q,"from_time":null,"to_time":null,`+
		`"type":"test","season":"normal","info":null,"note":null}`, id, classInstanceID, date), fields)
}

// File renders one entry of the files of a class instance.
func File(id int64, hash, name, uploader string, fields Fields) string {
	return with(fmt.Sprintf(`{"id":%d,"hash":%q,"mime":"application/pdf","name":%q,"size":1024,"type":"slides",`+
		`"upload_datetime":"2024-09-20T10:00:00","uploader":%q}`, id, hash, name, uploader), fields)
}

func with(base string, fields Fields) string {
	out := base
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		var err error
		if out, err = sjson.SetRaw(out, key, fields[key]); err != nil {
			panic(fmt.Sprintf("upstreamtest: cannot set %q: %v", key, err))
		}
	}
	return out
}
