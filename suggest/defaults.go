package suggest

// BaseReply closes every assistant response, with or without a keyword match.
const BaseReply = "Cảm ơn bạn đã chia sẻ. Thông tin trên chỉ mang tính tham khảo, nếu tình trạng kéo dài bạn nên liên hệ phòng y tế nhà trường."

// QuickSuggestions are the onboarding prompts shown before the first user
// message in a new conversation.
var QuickSuggestions = []string{
	"Triệu chứng sốt cao",
	"Cách xử lý khi bị đau đầu",
	"Lịch tiêm chủng của trường",
	"Tư vấn dinh dưỡng học đường",
}

// DefaultRules is the built-in keyword table, used when no rule file exists.
func DefaultRules() []Rule {
	return []Rule{
		{
			Keyword: "sốt",
			Reply:   "Khi bị sốt, bạn nên nghỉ ngơi, mặc đồ thoáng và bù nước đầy đủ.",
			Suggestions: []string{
				"Uống nhiều nước",
				"Theo dõi nhiệt độ",
				"Đến cơ sở y tế gần nhất",
			},
		},
		{
			Keyword: "đau đầu",
			Reply:   "Đau đầu ở lứa tuổi học đường thường do thiếu ngủ hoặc căng thẳng học tập.",
			Suggestions: []string{
				"Nghỉ ngơi ở nơi yên tĩnh",
				"Hạn chế thiết bị điện tử",
				"Liên hệ phòng y tế",
			},
		},
		{
			Keyword: "đau bụng",
			Reply:   "Với cơn đau bụng, bạn nên theo dõi vị trí và mức độ đau trước khi dùng thuốc.",
			Suggestions: []string{
				"Không bỏ bữa sáng",
				"Theo dõi cơn đau",
				"Báo cho phụ huynh",
			},
		},
		{
			Keyword: "dị ứng",
			Reply:   "Nếu nghi ngờ dị ứng, hãy tránh tác nhân nghi ngờ và báo ngay cho phòng y tế.",
			Suggestions: []string{
				"Tránh tác nhân gây dị ứng",
				"Kiểm tra thực đơn bán trú",
				"Mang theo thuốc được kê",
			},
		},
		{
			Keyword: "tiêm chủng",
			Reply:   "Lịch tiêm chủng của trường được thông báo trước ít nhất hai tuần.",
			Suggestions: []string{
				"Xem thông báo của trường",
				"Chuẩn bị sổ tiêm chủng",
			},
		},
	}
}
