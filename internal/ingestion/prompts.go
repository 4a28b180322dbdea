package ingestion

const analysisMaxTokens = 4096

const rulingPolicy = `You are part of a legal citator system in Zimbabwe that analyses court rulings.
Read the ruling below as a professional lawyer would and return its metadata as a JSON object with these keys:
name: the case name as given in the ruling.
citation: the case citation used to reference this case, formed as case name + court abbreviation + judgment number/year, e.g. "Bobson v Nyatwa & Anor HH 34/23" or "State v Gilbert SC 197/24".
court: the court the ruling comes from, e.g. "High Court of Zimbabwe".
date: the date the ruling was handed down.
case_number: the case number if one is given.
judges: an array with the names of the judges who decided the matter.
summary: a summary of the matter in fewer than 300 words.
keywords: up to 10 keywords.
jurisdiction: the jurisdiction the case applies to.
parties: an array of {"name", "role"} for every party, e.g. {"name": "Leeroy Ben", "role": "applicant"}.
case_law: an array of {"citation", "desc", "result"} for each precedent relied on; desc is 20 to 200 words describing the precedent, result is "referred" or "overruled".
legislation: an array of {"citation", "legislation", "section", "desc", "result"} for each section of legislation used or challenged; citation is the legislation name and section number only, e.g. "Mines Act 2019, Section 2"; desc is 20 to 200 words on how it was used.
set_precedent: an array of {"precedent", "desc"} for any new precedent this ruling establishes, empty if none.`

const actPolicy = `You are part of a legal citator system that analyses legislation and extracts metadata.
Read the start of the legislation below and respond with a JSON object only:
{"metadata": {"juris": "<jurisdiction of the legislation>", "citation": "<citation of the legislation>"}}
A citation identifies the legislation, e.g. "Electoral Act, Chapter 24:03" or "Elections Regulations of 2019, Electoral Act".`
