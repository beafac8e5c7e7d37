package prompt

// SystemPrompt frames the model for both profiles and questions
const SystemPrompt = "You are a world-class expert in psychology, psychological assessment, and mental health. " +
	"You specialize in synthesizing diverse data sources, such as psychological assessments, medical history, " +
	"therapy notes, and diagnostic evaluations, into insightful, psychologically sophisticated profiles. " +
	"Your goal is to produce actionable insights, grounded in evidence, that support treatment planning and patient care. " +
	"Always cite the data source behind your claims and remain both rigorous and humanistic in tone."

// SectionTitles are the profile sections in the order the model must return them
var SectionTitles = []string{
	"Profile Summary",
	"Key Strengths",
	"Potential Challenges",
	"Psychological Style",
	"Treatment Considerations",
	"Risk Factors",
}

const profileSourceGuidance = `EXTREMELY IMPORTANT GUIDANCE ON SOURCES:
1. When citing sources, DO NOT refer to them by their file type (e.g., 'PDF', 'DOCX'). Instead, identify them by their content type:
   - Refer to personality assessments as 'Hogan Assessment' or similar specific assessment name
   - Refer to 360-degree feedback as '360° Feedback'
   - Refer to resumes as 'CV/Resume'
   - Refer to intercultural assessments as 'IDI Assessment'
   - For other documents, identify them by their purpose (e.g., 'Performance Review', 'Interview Notes')

2. For each major claim or insight in your analysis, include a brief in-text citation showing the source, like this: '... demonstrates strong analytical abilities (Hogan Assessment).' or '... has experience managing global teams (CV/Resume).'

Use all and only the documents and data provided by the user. You must only reference the document types listed above. Do not invent or assume the existence of other data sources. If a type of data (e.g., 'Coaching Notes') is not present in the provided documents, do not reference it.

For each section of your analysis, make a good faith effort to use and reference insights from all of the provided documents.

`

const profileFormatting = `IMPORTANT FORMATTING INSTRUCTIONS:
- For 'Key Strengths', 'Potential Challenges', 'Treatment Considerations', and 'Risk Factors' sections, ALWAYS format the content as a numbered list (1., 2., 3., etc.)
- Insert a blank line between each numbered item (double line break)
- Each point should be focused on a single strength, challenge, or consideration
- Limit each enumerated list to a maximum of 5 items
- For 'Profile Summary' and 'Psychological Style' sections, use paragraph format
- Each significant claim should include a parenthetical reference to the source (e.g., 'exhibits anxious tendencies (Psychological Assessment)')
- Do not use markdown formatting or special characters that might interfere with JSON

`

const profileExample = `Example output:
[
  {"section": "Profile Summary", "content": "The patient exhibits signs of moderate anxiety with comorbid depressive features (Psychological Assessment) and has shown partial response to previous cognitive-behavioral interventions (Treatment History)...", "sources": "Psychological Assessment, Treatment History"},
  {"section": "Key Strengths", "content": "1. Strong introspective abilities and psychological mindedness (Psychological Assessment)\n\n2. Consistent engagement in therapeutic process (Treatment Notes)\n\n3. Supportive family environment (Clinical Interview)", "sources": "Psychological Assessment, Treatment Notes, Clinical Interview"},
  {"section": "Potential Challenges", "content": "1. Tendency toward rumination and catastrophic thinking (Psychological Assessment)\n\n2. Difficulty with emotional regulation during acute stress (Treatment Notes)\n\n3. Inconsistent application of coping strategies (Psychological Assessment)", "sources": "Psychological Assessment, Treatment Notes"},
  {"section": "Psychological Style", "content": "The patient demonstrates an anxious-avoidant attachment style (Psychological Assessment) with a tendency to withdraw during interpersonal conflicts (Clinical Interview)...", "sources": "Psychological Assessment, Clinical Interview"},
  {"section": "Treatment Considerations", "content": "1. Structured cognitive-behavioral approaches with emphasis on thought records (Psychological Assessment)\n\n2. Gradual exposure to anxiety-provoking situations (Treatment History)\n\n3. Mindfulness training to reduce rumination (Clinical Interview)", "sources": "Psychological Assessment, Treatment History, Clinical Interview"},
  {"section": "Risk Factors", "content": "1. History of passive suicidal ideation during major depressive episodes (Treatment History)\n\n2. Social isolation during periods of heightened anxiety (Psychological Assessment)\n\n3. Tendency to discontinue medication without consultation (Treatment Notes)", "sources": "Treatment History, Psychological Assessment, Treatment Notes"}
]

`

const profileTrailer = `Return only the JSON array, with no extra commentary or explanation.
Remember to format 'Key Strengths', 'Potential Challenges', 'Treatment Considerations', and 'Risk Factors' as numbered lists with proper line breaks between items.`

const questionGuidance = `EXTREMELY IMPORTANT GUIDANCE ON SOURCES AND CITATIONS:

1. When citing sources, DO NOT refer to them by their file type (e.g., 'PDF', 'DOCX'). Instead, identify them by their content type:
   - Refer to psychological assessments as 'Psychological Assessment'
   - Refer to therapy documentation as 'Treatment Notes'
   - Refer to medical information as 'Medical History'
   - Refer to personality measures as 'Personality Assessment'
   - For other documents, identify them by their purpose (e.g., 'Clinical Interview', 'Standardized Tests')

2. For EVERY significant claim or insight in your analysis, include a brief in-text citation showing the source, like this:
   '... exhibits anxiety symptoms (Psychological Assessment).' or '... has responded well to CBT techniques (Treatment Notes).'

3. Do not make claims that cannot be directly supported by the provided documents. If you're unsure about a claim, clearly indicate this.

4. At the end of your response, include a "References" section that lists all the source documents you cited.

5. Every paragraph should include at least one specific citation to a source document.

6. DO NOT HALLUCINATE OR INVENT SOURCES. Only use the document types that have been detected in the uploaded materials:
   %s
`

const questionTrailer = `Please provide a detailed, evidence-based answer, providing specific in-text citations for each claim (e.g., "exhibits anxiety symptoms (Psychological Assessment)").

End your response with a "References" section that lists all the documents you cited.

Remember: Only make claims that are directly supported by the documents. Include parenthetical citations for each major claim.`
