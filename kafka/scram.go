package kafka

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

var (
	sha256Gen scram.HashGeneratorFcn = func() hash.Hash { return sha256.New() }
	sha512Gen scram.HashGeneratorFcn = func() hash.Hash { return sha512.New() }
)

// scramClient adapts xdg-go/scram to sarama.SCRAMClient
type scramClient struct {
	*scram.Client
	*scram.ClientConversation
	gen scram.HashGeneratorFcn
}

func newSCRAMClientGenerator(gen scram.HashGeneratorFcn) func() sarama.SCRAMClient {
	return func() sarama.SCRAMClient {
		return &scramClient{gen: gen}
	}
}

// Begin 开始 SCRAM 认证
func (x *scramClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.gen.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

func (x *scramClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

func (x *scramClient) Done() bool {
	return x.ClientConversation.Done()
}
