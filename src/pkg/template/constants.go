package template

const (
	// ToolCommentTargetToken is replaced by the scan target so one PR can carry a comment per target
	ToolCommentTargetToken = "$TARGET$"
	ToolCommentSignature   = `<!-- iacguard: $TARGET$ - auto-generated comment, please do not remove -->`

	FileNameCommentTemplate    = "comment.md.tmpl"
	FileNameToolsTemplate      = "tools.md.tmpl"
	FileNameViolationsTemplate = "violations.md.tmpl"
)
