package news

import "context"

// MockSource is a caller-fed Source for tests and for operators who want a
// fixed, file-backed feed instead of a live RSS/API integration.
type MockSource struct {
	SourceName string
	Articles   []RawArticle
	Err        error
}

func (m *MockSource) Name() string { return m.SourceName }

func (m *MockSource) Fetch(ctx context.Context) ([]RawArticle, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Articles, nil
}
