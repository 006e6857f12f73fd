package patterns

// Built-in pattern tables, applied when a family is not overridden by
// configuration. Patterns match against lower-cased input.

var defaultInjectionPatterns = []string{
	`ignore\s+(all\s+|any\s+)?(previous|prior|above)\s+(instructions|prompts|rules)`,
	`disregard\s+(all\s+|any\s+)?(previous|prior|your)\s+(instructions|prompts|rules)`,
	`forget\s+(everything|all|your\s+(instructions|rules))`,
	`(reveal|show|print|repeat|output)\s+(me\s+)?(your|the)\s+(system\s+prompt|initial\s+prompt|instructions)`,
	`you\s+are\s+now\s+(a|an|in)\b`,
	`pretend\s+(to\s+be|you\s+are)`,
	`act\s+as\s+(if|though|a|an)\b`,
	`enable\s+developer\s+mode`,
	`\bjailbreak\b`,
	`\bdan\s+mode\b`,
	`new\s+instructions?\s*:`,
	`override\s+(your|the)\s+(instructions|rules|guidelines)`,
}

var defaultExtractionPatterns = []string{
	`(show|give|tell|send)\s+(me\s+)?(your|the)\s+(api[\s_-]?key|password|secret|credentials)`,
	`environment\s+variables?`,
	`\.env\b`,
	`(database|db)\s+(password|credentials|connection)`,
	`connection\s+string`,
	`internal\s+(configuration|settings|architecture)`,
	`(list|dump)\s+(all\s+)?(users|tables|schemas)`,
	`(training|fine[\s-]?tuning)\s+data`,
}

var defaultSQLPatterns = []string{
	`\bdrop\s+table\b`,
	`\bdelete\s+from\b`,
	`\btruncate\s+table\b`,
	`\binsert\s+into\b`,
	`\bunion\s+(all\s+)?select\b`,
	`\bselect\s+.*\bfrom\s+information_schema\b`,
	`'\s*or\s*'?1'?\s*=\s*'?1`,
	`;\s*--`,
	`\bexec(ute)?\s*\(`,
}

var defaultScriptPatterns = []string{
	`<\s*script\b`,
	`javascript\s*:`,
	`\bon(error|load|click|mouseover)\s*=`,
	`\beval\s*\(`,
	`document\s*\.\s*(cookie|location)`,
	`<\s*(iframe|object|embed)\b`,
}
