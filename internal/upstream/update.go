package upstream

import "fmt"

// Update is an upstream refresh trigger path.
type Update string

// Collection refresh triggers.
const (
	UpdateCourses    Update = "/update/courses/"
	UpdateRooms      Update = "/update/rooms/"
	UpdateAdmissions Update = "/update/admissions/"
	UpdateClasses    Update = "/update/classes/"
)

// UpdateTeachers refreshes the teachers of a department.
func UpdateTeachers(department int64) Update {
	return Update(fmt.Sprintf("/update/teachers/%d", department))
}

// UpdateClassInfo refreshes the descriptive information of a class instance.
func UpdateClassInfo(classInstance int64) Update {
	return Update(fmt.Sprintf("/update/class_info/%d", classInstance))
}

// UpdateClassEnrollments refreshes the enrollments of a class instance.
func UpdateClassEnrollments(classInstance int64) Update {
	return Update(fmt.Sprintf("/update/class_enrollments/%d", classInstance))
}

// UpdateTurns refreshes the turns of a class instance.
func UpdateTurns(classInstance int64) Update {
	return Update(fmt.Sprintf("/update/turns/%d", classInstance))
}
