package storage

// Repositories bundles every repository over one connection.
type Repositories struct {
	Documents *DocumentRepository
	Chapters  *ChapterRepository
	Contents  *ContentRepository
	Courses   *CourseRepository
}

// NewRepositories creates all repositories over db.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Documents: NewDocumentRepository(db),
		Chapters:  NewChapterRepository(db),
		Contents:  NewContentRepository(db),
		Courses:   NewCourseRepository(db),
	}
}
