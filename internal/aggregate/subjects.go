package aggregate

import "examdesk/internal/model"

// SubjectIndex resolves subject IDs to display names per class.
type SubjectIndex struct {
	allClasses bool
	names      map[string]map[string]string // class ID -> subject ID -> name
}

// NewSubjectIndex builds an index for a print scope. An empty scopeClassID
// means the scope spans all classes.
func NewSubjectIndex(scopeClassID string, subjectsByClass map[string][]model.Subject) *SubjectIndex {
	ix := &SubjectIndex{
		allClasses: scopeClassID == "",
		names:      make(map[string]map[string]string),
	}
	for classID, subjects := range subjectsByClass {
		if !ix.allClasses && classID != scopeClassID {
			continue
		}
		m := make(map[string]string, len(subjects))
		for _, s := range subjects {
			if s.Name != "" {
				m[s.ID] = s.Name
			}
		}
		ix.names[classID] = m
	}
	return ix
}

// Name returns the subject's display name. Unresolved subjects are labelled
// "<class> - <subject id>" when the scope spans all classes and by their ID
// otherwise, so the result is never blank.
func (ix *SubjectIndex) Name(classID, className, subjectID string) string {
	if ix != nil {
		if name, ok := ix.names[classID][subjectID]; ok {
			return name
		}
	}
	if ix == nil || ix.allClasses {
		if className == "" {
			className = classID
		}
		return className + " - " + subjectID
	}
	return subjectID
}
