package generate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/lecturekb/internal/concept"
	"github.com/raphaelgruber/lecturekb/internal/notes"
	"github.com/raphaelgruber/lecturekb/internal/segment"
)

// systemPrompt instructs the model to emit notes in the labelled
// YAML/CONTENT layout the parser expects.
const systemPrompt = `你是一名课程笔记整理助手。根据提供的课堂转写片段，为指定的知识点撰写一篇知识库笔记。

输出格式要求：
YAML:
title: 【学科】知识点名称
aliases:
  - 常用别名
tags:
  - 学科
subject: 学科
related_concepts:
  - 【学科】相关概念
CONTENT:
笔记正文（markdown）。引用已有概念时使用 [[【学科】概念名]] 双链。
保留正文中出现的 [MM:SS] 时间标记。

若一个片段包含多个独立知识点，用 "` + notes.NoteSeparator + `" 分隔多篇笔记。
不要输出除上述格式以外的内容。`

// userPrompt assembles one generation request from the segment, the
// concept and the frozen course context.
func userPrompt(subject string, kp segment.KnowledgePoint, seg segment.Segment, courseContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "学科：%s\n知识点：%s\n", subject, kp.Name)
	if seg.TimeRange.Duration() > 0 {
		fmt.Fprintf(&sb, "时间范围：%s\n", seg.TimeRange.String())
	}
	if courseContext != "" {
		sb.WriteString("\n已有概念（优先用双链引用它们，避免重复建立）：\n")
		sb.WriteString(courseContext)
		sb.WriteString("\n")
	}
	sb.WriteString("\n课堂转写片段：\n")
	sb.WriteString(seg.Text)
	return sb.String()
}

// maxContextConcepts bounds the prompt's course-context listing.
const maxContextConcepts = 200

// renderCourseContext renders a frozen concept export into the compact
// listing included in every generation prompt.
func renderCourseContext(export concept.Export) string {
	if len(export.Titles) == 0 {
		return ""
	}

	subjects := make([]string, 0, len(export.Subjects))
	for subject := range export.Subjects {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)

	var sb strings.Builder
	listed := 0
	for _, subject := range subjects {
		fmt.Fprintf(&sb, "%s: ", subject)
		titles := export.Subjects[subject]
		entries := make([]string, 0, len(titles))
		for _, title := range titles {
			if listed >= maxContextConcepts {
				break
			}
			entry := concept.BareName(title)
			if aliases := export.Aliases[title]; len(aliases) > 0 {
				entry += " (" + strings.Join(aliases, ", ") + ")"
			}
			entries = append(entries, entry)
			listed++
		}
		sb.WriteString(strings.Join(entries, "、"))
		sb.WriteString("\n")
		if listed >= maxContextConcepts {
			break
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
