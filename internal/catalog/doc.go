// Package catalog provides a minimal element tree over the ExploreCourses XML
// feed and the field-access rules used to read course data from it.
//
// The feed is loosely structured: optional fields may be missing entirely or
// present with no text. Fields are read through Field specs that state whether
// a value is required (absence is a *MissingFieldError) or optional (absence
// yields a default).
package catalog
