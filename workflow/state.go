package workflow

// State 单次运行的工作流状态，在每次工作器调用之间串联。
// 字段归属见各注释；工作器不直接改写 State，而是返回 Delta，
// 由编排器按字段声明的合并规则应用。
type State struct {
	// UserInput 运行开始时设置一次，之后只读。
	UserInput string

	// Plan 与 StepIndex 由规划器和重定向器共同持有；
	// StepIndex 指向下一个待分派的步骤。
	Plan      Plan
	StepIndex int

	// SiteNames / URLs 追加累积，来自规划器的结构化输出。
	SiteNames []string
	URLs      []string

	// LastError 执行失败时写入，规划成功后清空。
	LastError string

	// OutputContent 提取数据片段的追加列表，
	// 由执行工作器写入、格式化工作器消费。
	OutputContent []string

	// CurrentModelIndex 轮换游标，最近一次成功的工作器持有；
	// 下一次调用从上次成功的提供商继续，避免总是先撞上
	// 已耗尽的提供商。
	CurrentModelIndex int

	// Output 最终格式化结果，由格式化工作器写入一次。
	Output string

	// 各节点的消息信箱：当前派发给该工作器的指令（追加）。
	ExecutionMessages   []string
	RAGMessages         []string
	OutputAgentMessages []string
}

// NewState 创建运行初始状态。
func NewState(userInput string) *State {
	return &State{UserInput: userInput}
}

// Delta 一次工作器调用产生的部分状态更新。指针字段为
// “替换”语义（nil 表示不变），切片字段为“追加”语义。
type Delta struct {
	Plan      *Plan
	StepIndex *int

	SiteNames []string
	URLs      []string

	LastError         *string
	OutputContent     []string
	CurrentModelIndex *int
	Output            *string

	ExecutionMessages   []string
	RAGMessages         []string
	OutputAgentMessages []string
}

// Apply 按字段合并规则把 delta 应用到状态上。
func (s *State) Apply(d Delta) {
	if d.Plan != nil {
		s.Plan = *d.Plan
	}
	if d.StepIndex != nil {
		s.StepIndex = *d.StepIndex
	}
	s.SiteNames = appendUnique(s.SiteNames, d.SiteNames)
	s.URLs = appendUnique(s.URLs, d.URLs)
	if d.LastError != nil {
		s.LastError = *d.LastError
	}
	s.OutputContent = append(s.OutputContent, d.OutputContent...)
	if d.CurrentModelIndex != nil {
		s.CurrentModelIndex = *d.CurrentModelIndex
	}
	if d.Output != nil {
		s.Output = *d.Output
	}
	s.ExecutionMessages = append(s.ExecutionMessages, d.ExecutionMessages...)
	s.RAGMessages = append(s.RAGMessages, d.RAGMessages...)
	s.OutputAgentMessages = append(s.OutputAgentMessages, d.OutputAgentMessages...)
}

func appendUnique(dst, src []string) []string {
	for _, v := range src {
		seen := false
		for _, existing := range dst {
			if existing == v {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, v)
		}
	}
	return dst
}

// 指针字面量辅助，构造 Delta 时使用。
func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func planPtr(p Plan) *Plan    { return &p }
