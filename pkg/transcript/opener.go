package transcript

import (
	"context"
	"strings"

	"github.com/papercomputeco/typhoon/pkg/chat"
	"github.com/papercomputeco/typhoon/pkg/streamclient"
)

// RelayChatPath is the relay's chat stream route.
const RelayChatPath = "/api/llm/chat"

// RelayOpener opens chat streams through a typhoon relay.
type RelayOpener struct {
	client *streamclient.Client
	url    string
}

// NewRelayOpener returns an Opener posting to the relay at baseURL.
func NewRelayOpener(baseURL string, client *streamclient.Client) *RelayOpener {
	if client == nil {
		client = streamclient.New()
	}
	return &RelayOpener{
		client: client,
		url:    strings.TrimRight(baseURL, "/") + RelayChatPath,
	}
}

func (o *RelayOpener) OpenChat(ctx context.Context, req *chat.ChatRequest) (EventStream, error) {
	s, err := o.client.Open(ctx, o.url, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}
