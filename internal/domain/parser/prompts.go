package parser

const structurePrompt = `
You are an expert healthcare insurance query analyzer. Extract structured information from the following query.

Return ONLY valid JSON format with these fields:
- age: integer or null if not mentioned
- gender: "M", "F", or null if not mentioned
- procedure: string describing medical procedure or null
- location: string for city/state or null
- policy_duration_months: integer or null
- query_type: "coverage", "exclusion", "claim", "premium", or "general"
- keywords: array of important terms for document retrieval

Query: %s

JSON Output:`

const enhancePrompt = `
Based on this structured insurance query data, generate 2-3 alternative search phrases that would help find relevant policy documents.

Original Query: %s
Structured Data: %s

Generate search phrases focusing on:
1. Policy coverage terms
2. Medical procedure terminology
3. Exclusion clauses

Search Phrases:`
