package llm

// Fragment returns the text carried by a single streamed chat record.
func (r ChatResponse) Fragment() string {
	return r.Message.Content
}

// Fragment returns the text carried by a single streamed generate record.
func (r GenerateResponse) Fragment() string {
	return r.Response
}
