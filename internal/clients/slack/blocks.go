package slack

// TextObject Block Kit 文本元素。
type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Block Block Kit 组件。不同类型只填对应的字段。
type Block struct {
	Type     string       `json:"type"`
	Text     *TextObject  `json:"text,omitempty"`
	Fields   []TextObject `json:"fields,omitempty"`
	Elements []TextObject `json:"elements,omitempty"`
}

// BuildTaskBlocks 构建任务卡片：标题 header、分隔线、状态/优先级（及可选
// 负责人）字段区、可选描述区，以及末尾的来源标识。纯函数，不发起网络调用。
func BuildTaskBlocks(title, description, assignee, status, priority string) []Block {
	if status == "" {
		status = "📋 待处理"
	}
	if priority == "" {
		priority = "普通"
	}

	blocks := []Block{
		{
			Type: "header",
			Text: &TextObject{Type: "plain_text", Text: "📌 " + title, Emoji: true},
		},
		{Type: "divider"},
	}

	fields := []TextObject{
		{Type: "mrkdwn", Text: "*状态:*\n" + status},
		{Type: "mrkdwn", Text: "*优先级:*\n" + priority},
	}
	if assignee != "" {
		fields = append(fields, TextObject{Type: "mrkdwn", Text: "*负责人:*\n" + assignee})
	}
	blocks = append(blocks, Block{Type: "section", Fields: fields})

	if description != "" {
		blocks = append(blocks, Block{
			Type: "section",
			Text: &TextObject{Type: "mrkdwn", Text: "*描述:*\n" + description},
		})
	}

	blocks = append(blocks, Block{
		Type: "context",
		Elements: []TextObject{
			{Type: "mrkdwn", Text: "创建自 DevOps Agent Gateway"},
		},
	})

	return blocks
}
