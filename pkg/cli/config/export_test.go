package config

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output, sentryDSN, sentryEnv string) *Logger {
	return &Logger{
		level:     level,
		format:    format,
		output:    output,
		sentryDSN: sentryDSN,
		sentryEnv: sentryEnv,
	}
}

// NewStoreForTest creates a Store config for testing purposes
func NewStoreForTest(backend, url string) *Store {
	return &Store{
		backend: backend,
		url:     url,
	}
}

// NewGeminiForTest creates a Gemini config for testing purposes
func NewGeminiForTest(projectID, location string) *Gemini {
	return &Gemini{
		projectID: projectID,
		location:  location,
	}
}

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken string) *Slack {
	return &Slack{
		botToken: botToken,
	}
}

// NewVectorForTest creates a Vector config for testing purposes
func NewVectorForTest(backend string, dimension int, indexName string) *Vector {
	return &Vector{
		backend:   backend,
		dimension: dimension,
		indexName: indexName,
	}
}
