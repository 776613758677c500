package merkle_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/merkle"
)

var _ = Describe("RecordTurn", func() {
	var (
		ctx    context.Context
		storer *merkle.MemoryStorer
	)

	BeforeEach(func() {
		ctx = context.Background()
		storer = merkle.NewMemoryStorer()
	})

	turn := func(reply string, history ...llm.Message) *llm.ConversationTurn {
		return &llm.ConversationTurn{
			Request: llm.NewChatRequest("llama3.2", history...),
			Response: &llm.ChatResponse{
				Model:      "llama3.2",
				Message:    llm.NewMessage(llm.RoleAssistant, reply),
				Done:       true,
				DoneReason: "stop",
				Metrics:    llm.Metrics{EvalCount: 7},
			},
		}
	}

	It("stores the history as a chain ending in the response", func() {
		head, err := merkle.RecordTurn(ctx, storer, turn("Hello!",
			llm.NewMessage(llm.RoleSystem, "Be brief."),
			llm.NewMessage(llm.RoleUser, "Hi"),
		))
		Expect(err).NotTo(HaveOccurred())

		depth, err := storer.Depth(ctx, head)
		Expect(err).NotTo(HaveOccurred())
		Expect(depth).To(Equal(2))

		node, err := storer.Get(ctx, head)
		Expect(err).NotTo(HaveOccurred())
		Expect(node.Content.Role).To(Equal(llm.RoleAssistant))
		Expect(node.Content.DoneReason).To(Equal("stop"))
		Expect(node.Content.Metrics.EvalCount).To(Equal(7))

		conversation, err := merkle.Conversation(ctx, storer, head)
		Expect(err).NotTo(HaveOccurred())
		Expect(conversation).To(Equal([]llm.Message{
			llm.NewMessage(llm.RoleSystem, "Be brief."),
			llm.NewMessage(llm.RoleUser, "Hi"),
			llm.NewMessage(llm.RoleAssistant, "Hello!"),
		}))
	})

	It("reuses the shared prefix and branches on a different reply", func() {
		history := []llm.Message{llm.NewMessage(llm.RoleUser, "Tell me a joke")}

		head1, err := merkle.RecordTurn(ctx, storer, turn("Knock knock.", history...))
		Expect(err).NotTo(HaveOccurred())
		head2, err := merkle.RecordTurn(ctx, storer, turn("Why did the chicken...", history...))
		Expect(err).NotTo(HaveOccurred())
		again, err := merkle.RecordTurn(ctx, storer, turn("Knock knock.", history...))
		Expect(err).NotTo(HaveOccurred())

		Expect(head1).NotTo(Equal(head2))
		Expect(again).To(Equal(head1))

		nodes, _ := storer.List(ctx)
		Expect(nodes).To(HaveLen(3))
		roots, _ := storer.Roots(ctx)
		Expect(roots).To(HaveLen(1))
		leaves, _ := storer.Leaves(ctx)
		Expect(leaves).To(HaveLen(2))
	})

	It("extends a conversation from its previous head", func() {
		first := []llm.Message{llm.NewMessage(llm.RoleUser, "Hi")}
		head1, err := merkle.RecordTurn(ctx, storer, turn("Hello!", first...))
		Expect(err).NotTo(HaveOccurred())

		second := append(first,
			llm.NewMessage(llm.RoleAssistant, "Hello!"),
			llm.NewMessage(llm.RoleUser, "How are you?"),
		)
		head2, err := merkle.RecordTurn(ctx, storer, turn("Fine.", second...))
		Expect(err).NotTo(HaveOccurred())

		path, err := storer.Ancestry(ctx, head2)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(HaveLen(4))

		// The earlier reply had metrics, the replayed history message does not,
		// so the second turn starts a sibling of the first head.
		Expect(path[2].Hash).NotTo(Equal(head1))

		firstReply, err := storer.Get(ctx, head1)
		Expect(err).NotTo(HaveOccurred())
		Expect(*path[2].ParentHash).To(Equal(path[3].Hash))
		Expect(*firstReply.ParentHash).To(Equal(path[3].Hash))
	})

	It("rejects an incomplete turn", func() {
		_, err := merkle.RecordTurn(ctx, storer, &llm.ConversationTurn{Request: llm.NewChatRequest("llama3.2")})
		Expect(err).To(HaveOccurred())
	})
})
