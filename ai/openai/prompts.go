package openai

const taggingResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "tags": {
      "type": "array",
      "items": {
        "type": "string",
        "pattern": "^[a-z0-9]+( [a-z0-9]+)*$"
      }
    }
  },
  "required": ["tags"],
  "additionalProperties": false
}`

const taggingPromptTemplate = `Extract topical tags from the given message and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- Tags must be lowercase, 1-3 words each, singular form where natural.
- Return at most %d tags, most relevant first.
- Tags name what the message is ABOUT (topics, technologies, places, activities), not how it is phrased.
- Include only topics explicitly mentioned or clearly implied. Do not hallucinate.
- If the message has no tag-worthy content, return "tags": [].
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "can you help me set up a postgres replica on my ubuntu server"
Output:
{"tags": ["postgres", "database replication", "ubuntu", "server administration"]}

Example (no content):
Input: "ok thanks"
Output:
{"tags": []}`

const chatSummaryPrompt = `Summarize the following conversation in 2-4 sentences of plain prose.

Rules:
- Describe what was discussed and what, if anything, was concluded or produced.
- Write in the third person. Never address the reader.
- Do not quote the conversation. Do not mention "the user" or "the assistant" by turn; describe the substance.
- Output only the summary text. No preamble, no headings, no bullet points.`

const clusterSummaryPrompt = `The following excerpts were grouped together because they are semantically similar. Summarize the common theme in 1-3 sentences of plain prose.

Rules:
- Name the shared topic and the range of angles the excerpts take on it.
- Write in the third person. Never address the reader.
- Output only the summary text. No preamble, no headings, no bullet points.`
