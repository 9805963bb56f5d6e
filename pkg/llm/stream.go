package llm

import "fmt"

// CollectStream drains a stream channel into a GenerateResponse.
// It blocks until the channel is closed. An error event ends collection and
// is returned with whatever text arrived before it.
func CollectStream(ch <-chan StreamEvent) (GenerateResponse, error) {
	var (
		resp GenerateResponse
		text string
		err  error
	)
	for ev := range ch {
		switch ev.Type {
		case StreamEventDelta:
			text += ev.Text
		case StreamEventComplete:
			if ev.Response != nil {
				resp = *ev.Response
			}
		case StreamEventError:
			if err == nil {
				err = fmt.Errorf("stream: %w", ev.Err)
			}
		}
	}
	// If no complete event was received, build response from accumulated text.
	if resp.StopReason == "" && text != "" {
		resp.Content = []ContentBlock{{Type: ContentTypeText, Text: text}}
		resp.StopReason = StopReasonEndTurn
	}
	return resp, err
}
