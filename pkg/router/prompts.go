package router

// Prompt templates for the two selection levels and for answer
// synthesis over retrieved context.

const synthesisSystemPrompt = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer the question. " +
	"If you don't know the answer, just say that you don't know. Keep the answer concise."

const selectorPromptTemplate = `Some choices are given below in a numbered list (1 to %d),
where each item describes a retrieval strategy.
---------------------
%s
---------------------
Using only the choices above and not prior knowledge, return the single
number of the choice that is most relevant to the question: '%s'
Answer with the number only.`

const agentPromptTemplate = `A user has uploaded a set of documents and is asking questions about them.
You can consult the documents through the following tools:
%s
To consult a tool, reply with exactly two lines:
Tool: <tool name>
Input: <a detailed plain text question>
When you have enough information to answer the user, reply with:
Answer: <your final answer>
Consult at most one tool per reply and never invent tool names.`
