package merkle_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ollama-go/pkg/llm"
	"github.com/papercomputeco/ollama-go/pkg/merkle"
)

var _ = Describe("Node", func() {
	Describe("NewNode", func() {
		Context("when creating a root node (no parent)", func() {
			It("creates a node with the given content", func() {
				content := user("hello world")
				node := merkle.NewNode(content, nil)

				Expect(node.Content).To(Equal(content))
			})

			It("sets ParentHash to nil for root nodes", func() {
				node := merkle.NewNode(user("test"), nil)

				Expect(node.ParentHash).To(BeNil())
			})

			It("produces consistent hashes for the same content", func() {
				node1 := merkle.NewNode(user("same content"), nil)
				node2 := merkle.NewNode(user("same content"), nil)

				Expect(node1.Hash).To(Equal(node2.Hash))
			})

			It("produces different hashes for different content", func() {
				node1 := merkle.NewNode(user("content A"), nil)
				node2 := merkle.NewNode(user("content B"), nil)

				Expect(node1.Hash).NotTo(Equal(node2.Hash))
			})

			It("distinguishes roles with the same text", func() {
				node1 := merkle.NewNode(msg(llm.RoleUser, "hi"), nil)
				node2 := merkle.NewNode(msg(llm.RoleAssistant, "hi"), nil)

				Expect(node1.Hash).NotTo(Equal(node2.Hash))
			})

			It("hashes tool calls and metrics", func() {
				call := merkle.NewBucket(llm.Message{
					Role: llm.RoleAssistant,
					ToolCalls: []llm.ToolCall{{Function: llm.ToolCallFunction{
						Name:      "get_weather",
						Arguments: json.RawMessage(`{"city":"Paris"}`),
					}}},
				}, "llama3.2")
				plain := merkle.NewBucket(llm.NewMessage(llm.RoleAssistant, ""), "llama3.2")

				Expect(merkle.NewNode(call, nil).Hash).NotTo(Equal(merkle.NewNode(plain, nil).Hash))

				withMetrics := plain
				withMetrics.Metrics = &llm.Metrics{EvalCount: 12}
				Expect(merkle.NewNode(withMetrics, nil).Hash).NotTo(Equal(merkle.NewNode(plain, nil).Hash))
			})
		})

		Context("when creating a child node (with parent)", func() {
			var parent *merkle.Node

			BeforeEach(func() {
				parent = merkle.NewNode(user("parent content"), nil)
			})

			It("links the child to the parent via ParentHash", func() {
				child := merkle.NewNode(msg(llm.RoleAssistant, "child content"), parent)

				Expect(child.ParentHash).NotTo(BeNil())
				Expect(*child.ParentHash).To(Equal(parent.Hash))
			})

			It("does not alias the parent's hash", func() {
				child := merkle.NewNode(msg(llm.RoleAssistant, "child content"), parent)
				original := parent.Hash
				parent.Hash = "changed"

				Expect(*child.ParentHash).To(Equal(original))
			})

			It("creates a chain of nodes", func() {
				child1 := merkle.NewNode(user("child 1"), parent)
				child2 := merkle.NewNode(user("child 2"), child1)
				child3 := merkle.NewNode(user("child 3"), child2)

				Expect(parent.ParentHash).To(BeNil())
				Expect(*child1.ParentHash).To(Equal(parent.Hash))
				Expect(*child2.ParentHash).To(Equal(child1.Hash))
				Expect(*child3.ParentHash).To(Equal(child2.Hash))
			})

			It("produces different hashes for same content with different parents", func() {
				parent2 := merkle.NewNode(user("different parent"), nil)
				child1 := merkle.NewNode(user("same content"), parent)
				child2 := merkle.NewNode(user("same content"), parent2)

				Expect(child1.Hash).NotTo(Equal(child2.Hash))
			})
		})
	})

	Describe("Hash computation", func() {
		It("produces a valid SHA-256 hex string (64 characters)", func() {
			node := merkle.NewNode(user("test"), nil)

			Expect(node.Hash).To(HaveLen(64))
			Expect(node.Hash).To(MatchRegexp("^[a-f0-9]{64}$"))
		})

		It("survives a JSON round trip", func() {
			parent := merkle.NewNode(user("q"), nil)
			node := merkle.NewNode(msg(llm.RoleAssistant, "a"), parent)

			data, err := json.Marshal(node)
			Expect(err).NotTo(HaveOccurred())

			var decoded merkle.Node
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			Expect(decoded.Verify()).To(BeTrue())
			Expect(decoded.Hash).To(Equal(node.Hash))
		})

		It("detects tampered content", func() {
			node := merkle.NewNode(user("original"), nil)
			node.Content.Content = "tampered"

			Expect(node.Verify()).To(BeFalse())
		})
	})
})
