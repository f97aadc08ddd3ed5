package rag

import (
	"strings"
	"text/template"
)

const classifySystem = "You are an expert text classification model. Respond with a single category label."

var classifyTmpl = template.Must(template.New("classify").Parse(`You are a classification model. Classify the following user query (consider together with the conversation history provided below) into exactly one of these categories:
1) INSURANCE_SERVICE
2) INSURANCE_PRODUCT
3) CONTINUE_CONVERSATION
4) MORE
5) OFF_TOPIC

Guidelines:
- If the query is about insurance services in particular (e.g., "กรอบระยะเวลาสำหรับการให้บริการ","ประกันกลุ่ม","ตรวจสอบผู้ขายประกัน","ดาวน์โหลดแบบฟอร์มต่างๆ","ค้นหาโรงพยาบาลคู่สัญญา","ค้นหาสาขา","บริการพิเศษ","บริการเรียกร้องสินไหมทดแทน","บริการด้านการพิจารณารับประกัน","บริการผู้ถือกรมธรรม์","บริการรับเรื่องร้องเรียน","ข้อแนะนำในการแจ้งอุบัติเหตุ","บริการตัวแทน - นายหน้า"), choose "INSURANCE_SERVICE".
- If the query involves an insurance product or policy (e.g., "แนะนำประกัน","ขอดูประกัน","มีประกัน") but not specifically an insurance service, choose "INSURANCE_PRODUCT".
- If the query asks for more detail about something said in the conversation history, choose "CONTINUE_CONVERSATION".
- If the query asks for more products than the ones already shown (e.g., "show me more product", "มีแบบอื่นอีกไหม"), choose "MORE".
- Otherwise, choose "OFF_TOPIC".

Return ONLY one of these labels: INSURANCE_SERVICE, INSURANCE_PRODUCT, CONTINUE_CONVERSATION, MORE, OFF_TOPIC.

User Query: {{.Query}}
Conversation History: {{or .History "None"}}
`))

const answerSystem = "You are a helpful expert insurance salesman agent assistant"

var answerTmpl = template.Must(template.New("answer").Parse(`You are a helpful expert insurance (ทั้งประกันชีวิตและประกันภัย) salesman agent assistant from {{.Company}}.
Your goals:
    Answer the query using only the Context (and conversation history) provided below to analyze and recommend insurance products or services. Tell every core detail.

Constraints:
    - Respond in {{.Language}} unless absolutely necessary to reference specific names or URLs.
    - If you do not have sufficient information, respond that you are unsure or request clarification.
Conversation History: {{or .History "None"}}
Context: {{or .Context "None"}}
Question: {{.Query}}
Answer: `))

const compactSystem = "You are a helpful assistant. Condense the user's conversation by selectively removing less important or redundant information. Prioritize preserving numeric details, specific names, exact wording, key facts, and recent messages. Avoid overly summarizing; keep the original details intact."

var compactTmpl = template.Must(template.New("compact").Parse(`Keep the result under {{.MaxChars}} characters.

{{.History}}`))

const condenseSystem = "You rewrite follow-up questions into standalone search queries for an insurance knowledge base. Respond with the query only."

var condenseTmpl = template.Must(template.New("condense").Parse(`Previous user messages:
{{.Prior}}

Follow-up question: {{.Query}}

Rewrite the follow-up question as one self-contained search query in the same language, keeping product names and numbers.`))

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
